package service

import (
	"sort"
	"sync"
)

// entityLocks hands out one mutex per entity key. Several keys are always
// taken in sorted order. An entry lives only while someone holds or waits
// for it.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*entityLock)}
}

func (l *entityLocks) acquire(key string) *entityLock {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &entityLock{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return m
}

func (l *entityLocks) release(key string, m *entityLock) {
	m.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
}

// lock acquires every key and returns the function releasing them.
func (l *entityLocks) lock(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var held []string
	var mus []*entityLock
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		mus = append(mus, l.acquire(key))
		held = append(held, key)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i], mus[i])
		}
	}
}
