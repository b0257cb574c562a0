package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name      string
	caps      []Capability
	available bool
}

func (f *fakeProvider) Descriptor() ProviderDescriptor {
	return ProviderDescriptor{Name: f.name, Type: ProviderFree, Capabilities: f.caps}
}
func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return f.available }

func TestRegistryRegisterAndByName(t *testing.T) {
	r := NewRegistry()
	p := &fakeProvider{name: "bookapi", caps: []Capability{CapBookMetadata}, available: true}
	require.NoError(t, r.Register(p))

	got, ok := r.ByName("bookapi")
	assert.True(t, ok)
	assert.Same(t, Provider(p), got)

	_, ok = r.ByName("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeProvider{name: "bookapi"}))
	err := r.Register(&fakeProvider{name: "bookapi"})
	assert.Error(t, err)
}

func TestRegistryGetByCapabilityFiltersAndOrders(t *testing.T) {
	r := NewRegistry()
	free := &fakeProvider{name: "freeapi", caps: []Capability{CapBookMetadata}, available: true}
	paid := &fakeProvider{name: "bookapi", caps: []Capability{CapBookMetadata}, available: true}
	other := &fakeProvider{name: "aigen", caps: []Capability{CapBookGeneration}, available: true}

	require.NoError(t, r.Register(free))
	require.NoError(t, r.Register(paid))
	require.NoError(t, r.Register(other))
	r.SetPriority([]string{"bookapi", "freeapi"})
	r.Seal()

	providers := r.GetByCapability(CapBookMetadata)
	require.Len(t, providers, 2)
	assert.Equal(t, "bookapi", providers[0].Descriptor().Name)
	assert.Equal(t, "freeapi", providers[1].Descriptor().Name)

	assert.Empty(t, r.GetByCapability(CapIdentityCrosswalk))
}

func TestRegistryGetByCapabilityRanksUnknownNamesByRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	a := &fakeProvider{name: "a", caps: []Capability{CapBookMetadata}, available: true}
	b := &fakeProvider{name: "b", caps: []Capability{CapBookMetadata}, available: true}
	c := &fakeProvider{name: "c", caps: []Capability{CapBookMetadata}, available: true}

	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(c))
	r.SetPriority([]string{"b"})
	r.Seal()

	providers := r.GetByCapability(CapBookMetadata)
	require.Len(t, providers, 3)
	names := []string{providers[0].Descriptor().Name, providers[1].Descriptor().Name, providers[2].Descriptor().Name}
	assert.Equal(t, []string{"b", "a", "c"}, names)
}

func TestRegistryRegisterAfterSealPanics(t *testing.T) {
	r := NewRegistry()
	r.Seal()
	assert.Panics(t, func() {
		_ = r.Register(&fakeProvider{name: "late"})
	})
}

func TestAvailableFiltersUnavailableProviders(t *testing.T) {
	up := &fakeProvider{name: "up", available: true}
	down := &fakeProvider{name: "down", available: false}

	out := Available(context.Background(), []Provider{up, down})
	require.Len(t, out, 1)
	assert.Equal(t, "up", out[0].Descriptor().Name)
}
