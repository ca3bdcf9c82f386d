package types

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Set keeps insertion order so that serialized catalogs stay stable across runs.
type Set[T comparable] struct {
	hash  map[T]int
	items []T
}

func NewSet[T comparable](values ...T) *Set[T] {
	set := &Set[T]{hash: make(map[T]int)}
	set.Insert(values...)
	return set
}

func (s *Set[T]) init() {
	if s.hash == nil {
		s.hash = make(map[T]int)
	}
}

func (s *Set[T]) Insert(values ...T) {
	s.init()
	for _, value := range values {
		if _, found := s.hash[value]; found {
			continue
		}
		s.hash[value] = len(s.items)
		s.items = append(s.items, value)
	}
}

func (s *Set[T]) Exists(value T) bool {
	if s == nil {
		return false
	}
	_, found := s.hash[value]
	return found
}

func (s *Set[T]) Remove(value T) {
	idx, found := s.hash[value]
	if !found {
		return
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	delete(s.hash, value)
	for i := idx; i < len(s.items); i++ {
		s.hash[s.items[i]] = i
	}
}

func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Array returns a copy of the elements in insertion order.
func (s *Set[T]) Array() []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s.items...)
}

func (s *Set[T]) Range(fn func(T) bool) {
	if s == nil {
		return
	}
	for _, item := range s.items {
		if !fn(item) {
			return
		}
	}
}

// Difference returns elements of s missing from other.
func (s *Set[T]) Difference(other *Set[T]) *Set[T] {
	diff := NewSet[T]()
	s.Range(func(item T) bool {
		if !other.Exists(item) {
			diff.Insert(item)
		}
		return true
	})
	return diff
}

func (s *Set[T]) String() string {
	return fmt.Sprintf("%v", s.Array())
}

func (s *Set[T]) MarshalJSON() ([]byte, error) {
	if s == nil || s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	s.hash = make(map[T]int)
	s.items = nil
	s.Insert(items...)
	return nil
}
