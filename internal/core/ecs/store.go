package ecs

import (
	"fmt"
	"iter"
)

// Record pairs a stored value with the entity that owns it.
type Record[T any] struct {
	Entity EntityID
	Data   T
}

// DenseStore is a generic packed store for per-entity data: records live in a
// contiguous slice and an index map resolves entity → slot. Removal swaps the
// last record into the hole, so iteration order changes across removals and
// pointers returned before an Add or Remove must not be used afterwards.
//
// A DenseStore is not safe for concurrent mutation.
type DenseStore[T any] struct {
	records []Record[T]
	index   map[EntityID]int
}

func NewDenseStore[T any]() *DenseStore[T] {
	return &DenseStore[T]{
		records: make([]Record[T], 0, 64),
		index:   make(map[EntityID]int, 64),
	}
}

// Add returns the record data for id, appending a zero value when id has none.
// created reports whether a new record was appended.
func (s *DenseStore[T]) Add(id EntityID) (data *T, created bool) {
	if i, ok := s.index[id]; ok {
		return &s.records[i].Data, false
	}
	s.records = append(s.records, Record[T]{Entity: id})
	last := len(s.records) - 1
	s.index[id] = last
	return &s.records[last].Data, true
}

// Remove deletes the record for id and returns the entity whose record was
// moved into the freed slot, or InvalidEntity when the removed record was last.
// Removing an entity without a record panics.
func (s *DenseStore[T]) Remove(id EntityID) (moved EntityID) {
	i, ok := s.index[id]
	if !ok {
		panic(fmt.Sprintf("ecs: remove of entity %d which has no record", id))
	}
	last := len(s.records) - 1
	moved = InvalidEntity
	if i != last {
		s.records[i] = s.records[last]
		moved = s.records[i].Entity
		s.index[moved] = i
	}
	var zero Record[T]
	s.records[last] = zero
	s.records = s.records[:last]
	delete(s.index, id)
	return moved
}

// Get returns the data for id, or nil when absent.
func (s *DenseStore[T]) Get(id EntityID) *T {
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	return &s.records[i].Data
}

// Record returns the full record for id, or nil when absent.
func (s *DenseStore[T]) Record(id EntityID) *Record[T] {
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	return &s.records[i]
}

func (s *DenseStore[T]) Has(id EntityID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *DenseStore[T]) Len() int {
	return len(s.records)
}

// At returns the record in slot i.
func (s *DenseStore[T]) At(i int) *Record[T] {
	return &s.records[i]
}

// Clear removes records from the back until the store is empty, calling
// cleanup (when non-nil) for each entity before its record goes away.
func (s *DenseStore[T]) Clear(cleanup func(EntityID)) {
	for len(s.records) > 0 {
		id := s.records[len(s.records)-1].Entity
		if cleanup != nil {
			cleanup(id)
		}
		s.Remove(id)
	}
}

// All yields each entity with a pointer to its data. The sequence is
// restartable; it must not be consumed while the store is being mutated.
func (s *DenseStore[T]) All() iter.Seq2[EntityID, *T] {
	return func(yield func(EntityID, *T) bool) {
		for i := 0; i < len(s.records); i++ {
			r := &s.records[i]
			if !yield(r.Entity, &r.Data) {
				return
			}
		}
	}
}

// Entities yields the entity of every record.
func (s *DenseStore[T]) Entities() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		for i := 0; i < len(s.records); i++ {
			if !yield(s.records[i].Entity) {
				return
			}
		}
	}
}
