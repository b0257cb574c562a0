package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackfillSource struct {
	buckets [][]string
	calls   int
	err     error
}

func (f *fakeBackfillSource) NextBucket(ctx context.Context, cursor string, size int) ([]string, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if f.calls >= len(f.buckets) {
		return nil, "", nil
	}
	b := f.buckets[f.calls]
	f.calls++
	if f.calls >= len(f.buckets) {
		return b, "", nil
	}
	return b, "next", nil
}

func TestFallbackBackfillSourceDrainsPrimaryThenFallback(t *testing.T) {
	primary := &fakeBackfillSource{buckets: [][]string{{"a"}, {"b"}}}
	fallback := &fakeBackfillSource{buckets: [][]string{{"c"}}}
	s := NewFallbackBackfillSource(primary, fallback)

	isbns, cursor, err := s.NextBucket(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, isbns)
	assert.Equal(t, "next", cursor)

	isbns, _, err = s.NextBucket(context.Background(), cursor, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, isbns)

	// Primary has served its last page; subsequent calls draw from
	// fallback instead of reporting the backfill as done.
	isbns, _, err = s.NextBucket(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, isbns)
}

func TestFallbackBackfillSourcePropagatesPrimaryError(t *testing.T) {
	primary := &fakeBackfillSource{err: errors.New("upstream down")}
	fallback := &fakeBackfillSource{buckets: [][]string{{"c"}}}
	s := NewFallbackBackfillSource(primary, fallback)

	_, _, err := s.NextBucket(context.Background(), "", 10)
	assert.Error(t, err)
}

func TestAIGenBackfillSourceValidatesGeneratedISBNs(t *testing.T) {
	r := NewRegistry()
	aigen := &fakeGenerationProvider{
		name: "aigen",
		books: []GeneratedBook{
			{Title: "Good", ISBN: "9780306406157"},
			{Title: "Bad", ISBN: "not-an-isbn"},
			{Title: "NoISBN"},
		},
	}
	require.NoError(t, r.Register(aigen))
	r.Seal()

	gen := NewBookGenerationOrchestrator(r)
	src := NewAIGenBackfillSource(gen, "suggest some books", 10)

	isbns, cursor, err := src.NextBucket(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, "ai", cursor)
	assert.Equal(t, []string{"9780306406157"}, isbns)
}

type fakeGenerationProvider struct {
	name  string
	books []GeneratedBook
}

func (f *fakeGenerationProvider) Descriptor() ProviderDescriptor {
	return ProviderDescriptor{Name: f.name, Type: ProviderFree, Capabilities: []Capability{CapBookGeneration}}
}
func (f *fakeGenerationProvider) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeGenerationProvider) GenerateBooks(ctx CallContext, prompt string, count int) ([]GeneratedBook, error) {
	return f.books, nil
}
