package internal

import (
	"context"
	"strconv"
	"time"
)

// IdentityCrosswalkProvider implementation backed directly by the
// crosswalk table, grounded on the teacher's Controller.getASIN/setASIN
// cache-backed lookup (internal/controller.go), generalized from a single
// ASIN->editionID mapping to the spec's general (entity_type, provider,
// provider_id) -> our_key crosswalk (§3, §4.2 IDENTITY_CROSSWALK).
type IdentityProvider struct {
	store   *Store
	cache   Cache
	metrics *ProviderMetrics
}

var _ IdentityCrosswalkProvider = (*IdentityProvider)(nil)

func NewIdentityProvider(store *Store, cache Cache, metrics *ProviderMetrics) *IdentityProvider {
	return &IdentityProvider{store: store, cache: cache, metrics: metrics}
}

func (p *IdentityProvider) Descriptor() ProviderDescriptor {
	return ProviderDescriptor{
		Name:         "identity",
		Type:         ProviderFree,
		Capabilities: []Capability{CapIdentityCrosswalk},
	}
}

func (p *IdentityProvider) IsAvailable(ctx context.Context) bool { return true }

// ResolveAuthor looks up externalID ("provider:provider_id") in the
// crosswalk table, caching hits for a year the way the teacher's ASIN
// lookup does, since an (external ID -> our key) mapping almost never
// changes once established.
func (p *IdentityProvider) ResolveAuthor(ctx CallContext, externalID string) (*CrosswalkResolution, error) {
	provider, providerID, ok := splitExternalID(externalID)
	if !ok {
		return nil, ValidationError("malformed external ID", externalID)
	}

	cacheKey := "crosswalk:author:" + provider + ":" + providerID
	if cached, err := p.cache.Get(ctx, cacheKey); err == nil {
		if ourKey, perr := strconv.ParseInt(string(cached), 10, 64); perr == nil {
			return &CrosswalkResolution{OurKey: ourKey, Confidence: 100}, nil
		}
	}

	entry, err := p.store.FindCrosswalk(ctx, "author", provider, providerID)
	if err != nil {
		p.metrics.callInc("identity", "failure")
		return nil, InternalError("crosswalk lookup failed", err.Error())
	}
	if entry == nil {
		p.metrics.callInc("identity", "miss")
		return nil, nil
	}

	p.metrics.callInc("identity", "hit")
	_ = p.cache.Set(ctx, cacheKey, []byte(strconv.FormatInt(entry.OurKey, 10)), 365*24*time.Hour)
	return &CrosswalkResolution{OurKey: entry.OurKey, Confidence: entry.Confidence}, nil
}
