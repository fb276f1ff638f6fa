package types

import (
	"github.com/goccy/go-json"
)

// Set is an insertion-ordered set; order is preserved so that schema
// serialization stays deterministic across load/save cycles.
type Set[T comparable] struct {
	order  []T
	exists map[T]struct{}
}

func NewSet[T comparable](items ...T) *Set[T] {
	set := &Set[T]{
		order:  []T{},
		exists: map[T]struct{}{},
	}
	set.Insert(items...)
	return set
}

func (s *Set[T]) Insert(items ...T) {
	for _, item := range items {
		if _, found := s.exists[item]; found {
			continue
		}
		s.exists[item] = struct{}{}
		s.order = append(s.order, item)
	}
}

func (s *Set[T]) Exists(item T) bool {
	if s == nil {
		return false
	}
	_, found := s.exists[item]
	return found
}

func (s *Set[T]) Remove(item T) {
	if _, found := s.exists[item]; !found {
		return
	}
	delete(s.exists, item)
	for idx, elem := range s.order {
		if elem == item {
			s.order = append(s.order[:idx], s.order[idx+1:]...)
			break
		}
	}
}

func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Array returns the elements in insertion order.
func (s *Set[T]) Array() []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.order)
}

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	s.order = []T{}
	s.exists = map[T]struct{}{}
	s.Insert(items...)
	return nil
}
