package cache

import "sync"

// List is an ordered, id-keyed snapshot list. Every read returns a copy, so
// callers never share entries with the cache.
type List[T any] struct {
	mutex sync.RWMutex
	key   func(T) int64
	items []T
	stale bool
}

func NewList[T any](key func(T) int64) *List[T] {
	return &List[T]{key: key}
}

// Replace swaps the whole content, as after a full fetch, and clears the
// stale flag.
func (l *List[T]) Replace(items []T) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.items = append([]T(nil), items...)
	l.stale = false
}

func (l *List[T]) Items() []T {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return append([]T(nil), l.items...)
}

func (l *List[T]) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.items)
}

func (l *List[T]) Get(id int64) (T, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if i := l.indexOf(id); i >= 0 {
		return l.items[i], true
	}
	var zero T
	return zero, false
}

func (l *List[T]) Contains(id int64) bool {
	_, ok := l.Get(id)
	return ok
}

// Append adds item unless an entry with the same id is already present.
func (l *List[T]) Append(item T) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.indexOf(l.key(item)) >= 0 {
		return false
	}
	l.items = append(l.items, item)
	return true
}

// Update patches the entry with the given id in place.
func (l *List[T]) Update(id int64, patch func(*T)) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	patch(&l.items[i])
	return true
}

func (l *List[T]) Remove(id int64) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.items = append(l.items[:i:i], l.items[i+1:]...)
	return true
}

func (l *List[T]) MarkStale() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.stale = true
}

func (l *List[T]) Stale() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.stale
}

func (l *List[T]) indexOf(id int64) int {
	for i, item := range l.items {
		if l.key(item) == id {
			return i
		}
	}
	return -1
}
