package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetadataProvider struct {
	name      string
	available bool
	calls     int
	result    *EditionMetadata
}

func (f *fakeMetadataProvider) Descriptor() ProviderDescriptor {
	return ProviderDescriptor{Name: f.name, Type: ProviderFree, Capabilities: []Capability{CapBookMetadata}}
}
func (f *fakeMetadataProvider) IsAvailable(ctx context.Context) bool { return f.available }
func (f *fakeMetadataProvider) FetchByISBN(ctx CallContext, isbn string) (*EditionMetadata, error) {
	f.calls++
	return f.result, nil
}
func (f *fakeMetadataProvider) FetchBatch(ctx CallContext, isbns []string) (map[string]*EditionMetadata, error) {
	return nil, nil
}
func (f *fakeMetadataProvider) BatchCap() int { return 1 }

func TestMetadataMergeOrchestratorEnforcesPerProviderDailyLimit(t *testing.T) {
	r := NewRegistry()
	capped := &fakeMetadataProvider{name: "bookapi", available: true, result: &EditionMetadata{Title: "Capped"}}
	uncapped := &fakeMetadataProvider{name: "freeapi", available: true, result: &EditionMetadata{Title: "Uncapped"}}
	require.NoError(t, r.Register(capped))
	require.NoError(t, r.Register(uncapped))
	r.Seal()

	quota := NewQuotaLedger(newMemCache())
	o := NewMetadataMergeOrchestrator(r, quota, map[string]int64{"bookapi": 2})

	// First call: bookapi's single daily slot is still open.
	_, err := o.Fetch(context.Background(), "9780306406157", OrchestratorConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, capped.calls)
	assert.Equal(t, 1, uncapped.calls)

	// Second call: bookapi's daily limit is now exhausted and it must be
	// skipped, while the uncapped provider keeps being called.
	_, err = o.Fetch(context.Background(), "9780306406157", OrchestratorConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, capped.calls, "capped provider should not be called once its daily limit is reserved away")
	assert.Equal(t, 2, uncapped.calls)
}

func TestMetadataMergeOrchestratorNilDailyLimitsMeansUncapped(t *testing.T) {
	r := NewRegistry()
	p := &fakeMetadataProvider{name: "freeapi", available: true, result: &EditionMetadata{Title: "X"}}
	require.NoError(t, r.Register(p))
	r.Seal()

	o := NewMetadataMergeOrchestrator(r, NewQuotaLedger(newMemCache()), nil)
	for i := 0; i < 3; i++ {
		_, err := o.Fetch(context.Background(), "9780306406157", OrchestratorConfig{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, p.calls)
}
