package internal

import "context"

// DedupService is C6: ISBN existence checks and fuzzy title/author
// matching against persisted state.
type DedupService struct {
	store *Store
}

func NewDedupService(store *Store) *DedupService {
	return &DedupService{store: store}
}

// ISBNsExisting returns the subset of isbns already persisted (§4.7).
func (d *DedupService) ISBNsExisting(ctx context.Context, isbns []string) (map[string]bool, error) {
	return d.store.ISBNsExisting(ctx, isbns)
}

// FilterNewISBNs is a convenience wrapper: filterNewISBNs(xs++xs) ==
// filterNewISBNs(xs) (§8 idempotence law), since the result only ever
// contains isbns not already known, deduplicated by construction.
func (d *DedupService) FilterNewISBNs(ctx context.Context, isbns []string) ([]string, error) {
	seen := make(map[string]bool, len(isbns))
	uniq := make([]string, 0, len(isbns))
	for _, i := range isbns {
		if !seen[i] {
			seen[i] = true
			uniq = append(uniq, i)
		}
	}
	existing, err := d.ISBNsExisting(ctx, uniq)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(uniq))
	for _, i := range uniq {
		if !existing[i] {
			out = append(out, i)
		}
	}
	return out, nil
}

// AuthorsExisting matches by normalized_name, returning the canonical
// choice for each name that already has a match (§4.7).
func (d *DedupService) AuthorsExisting(ctx context.Context, names []string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, name := range names {
		normalized := NormalizeAuthorName(name)
		a, err := d.store.FindAuthorByNormalizedName(ctx, normalized)
		if err != nil {
			return nil, err
		}
		if a != nil {
			out[name] = a.Key
		}
	}
	return out, nil
}

// FuzzyTitleExists delegates to the storage-side trigram predicate, which
// is authoritative. The in-memory Levenshtein helpers in fuzzy.go
// (TitleSimilarity, TitlesSimilar) are not called on this path or by the
// orchestrators.
func (d *DedupService) FuzzyTitleExists(ctx context.Context, title string) (bool, float64, string, error) {
	return d.store.FuzzyTitleExists(ctx, title, FuzzyTitleThreshold)
}
