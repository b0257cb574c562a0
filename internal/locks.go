package internal

import "golang.org/x/sync/singleflight"

// FindOrCreateLocks is the C11 keyed promise table. It prevents parallel
// find-or-create operations against the same author or work from racing
// each other to create duplicates.
//
// It is grounded directly on the teacher's use of singleflight.Group for
// coalescing concurrent cache fetches (internal/controller.go's
// c.group.Do); here the same primitive coalesces concurrent inserts
// instead of concurrent reads. main.go builds one FindOrCreateLocks for the
// whole process. singleflight forgets a key as soon as its call returns, so
// only calls that overlap in time share a result; nothing is kept between
// requests or batches, and nothing is coordinated across processes.
type FindOrCreateLocks struct {
	group singleflight.Group
}

func NewFindOrCreateLocks() *FindOrCreateLocks {
	return &FindOrCreateLocks{}
}

// FindOrCreate resolves key to an entity key, running lookup once for all
// concurrent callers of the same key; a call that starts after an earlier
// one has returned runs lookup again.
// Lock keys are the normalized author name or canonical work title (§4.9).
func (l *FindOrCreateLocks) FindOrCreate(key string, lookup func() (int64, error)) (int64, error, bool) {
	v, err, shared := l.group.Do(key, func() (any, error) {
		return lookup()
	})
	if err != nil {
		return 0, err, shared
	}
	return v.(int64), nil, shared
}
