package ecs

import (
	"reflect"
	"slices"
	"time"

	"go.uber.org/zap"
)

// System is the contract every per-entity data store implements. Concrete
// systems embed Base[T], which supplies everything except the hooks they
// choose to override (Init, DeclareDependencies, InitEntity, CleanupEntity,
// Cleanup, UpdateAllEntities, AddFromRawData, ExportRawData, Name).
type System interface {
	Name() string
	ID() SystemID
	Manager() *Manager

	Init()
	DeclareDependencies()
	Cleanup()
	InitEntity(id EntityID)
	CleanupEntity(id EntityID)
	UpdateAllEntities(dt time.Duration)

	AddEntityGenerically(id EntityID)
	RemoveEntity(id EntityID)
	HasDataForEntity(id EntityID) bool
	DataAsAny(id EntityID) any
	ClearComponentData()
	Len() int

	DependOn(target SystemID, order OrderDependency, access AccessDependency, opts ...DependencyOption)
	ExecuteDependencies() []SystemID
	AccessDependencies() map[SystemID]AccessDependency

	IsThreadSafe() bool
	SetThreadSafe(threadSafe bool)

	// AddFromRawData adds the entity and fills its data from an opaque,
	// system-specific blob. ExportRawData returns nil when the system has
	// nothing to export.
	AddFromRawData(id EntityID, data []byte) error
	ExportRawData(id EntityID) ([]byte, error)

	attach(m *Manager, id SystemID, self System)
	dataType() reflect.Type
}

// Base implements System for data type T on top of a DenseStore.
type Base[T any] struct {
	manager      *Manager
	self         System
	id           SystemID
	store        *DenseStore[T]
	threadSafe   bool
	executeAfter []SystemID
	access       map[SystemID]AccessDependency
	autoAdd      []SystemID
}

func (b *Base[T]) attach(m *Manager, id SystemID, self System) {
	b.manager = m
	b.id = id
	b.self = self
	if b.store == nil {
		b.store = NewDenseStore[T]()
	}
	// Ids from an earlier registration are meaningless now.
	b.executeAfter = nil
	b.autoAdd = nil
	b.access = make(map[SystemID]AccessDependency)
}

func (b *Base[T]) dataType() reflect.Type { return reflect.TypeFor[T]() }

func (b *Base[T]) Name() string     { return reflect.TypeFor[T]().Name() }
func (b *Base[T]) ID() SystemID     { return b.id }
func (b *Base[T]) Manager() *Manager { return b.manager }

func (b *Base[T]) Init()                           {}
func (b *Base[T]) DeclareDependencies()            {}
func (b *Base[T]) Cleanup()                        {}
func (b *Base[T]) InitEntity(EntityID)             {}
func (b *Base[T]) CleanupEntity(EntityID)          {}
func (b *Base[T]) UpdateAllEntities(time.Duration) {}

func (b *Base[T]) AddFromRawData(id EntityID, _ []byte) error {
	b.AddEntity(id)
	return nil
}

func (b *Base[T]) ExportRawData(EntityID) ([]byte, error) { return nil, nil }

func (b *Base[T]) name() string {
	if b.self != nil {
		return b.self.Name()
	}
	return b.Name()
}

func (b *Base[T]) mustBeAttached() {
	if b.manager == nil {
		panic("ecs: system " + b.Name() + " used before RegisterSystem")
	}
}

// Store exposes the underlying dense store.
func (b *Base[T]) Store() *DenseStore[T] {
	b.mustBeAttached()
	return b.store
}

// AddEntity returns the data for id, creating it when absent. A new record
// first pulls id into every auto-add dependency, then runs InitEntity.
func (b *Base[T]) AddEntity(id EntityID) *T {
	b.mustBeAttached()
	if data := b.store.Get(id); data != nil {
		return data
	}
	b.store.Add(id)
	for _, dep := range b.autoAdd {
		b.manager.AddComponent(id, dep)
	}
	b.self.InitEntity(id)
	return b.store.Get(id)
}

func (b *Base[T]) AddEntityGenerically(id EntityID) { b.AddEntity(id) }

// RemoveEntity runs CleanupEntity and drops the record. Removing an entity
// the system holds no data for is fatal.
func (b *Base[T]) RemoveEntity(id EntityID) {
	b.mustBeAttached()
	if !b.store.Has(id) {
		b.manager.fatal("remove of entity with no data",
			zap.String("system", b.name()), zap.Uint64("entity", uint64(id)))
	}
	b.self.CleanupEntity(id)
	b.store.Remove(id)
}

func (b *Base[T]) HasDataForEntity(id EntityID) bool {
	return b.store != nil && b.store.Has(id)
}

// GetComponentData returns the data for id, or nil when absent.
func (b *Base[T]) GetComponentData(id EntityID) *T {
	if b.store == nil {
		return nil
	}
	return b.store.Get(id)
}

func (b *Base[T]) DataAsAny(id EntityID) any {
	data := b.GetComponentData(id)
	if data == nil {
		return nil
	}
	return data
}

func (b *Base[T]) ClearComponentData() {
	if b.store == nil {
		return
	}
	b.store.Clear(b.self.CleanupEntity)
}

func (b *Base[T]) Len() int {
	if b.store == nil {
		return 0
	}
	return b.store.Len()
}

func (b *Base[T]) IsThreadSafe() bool            { return b.threadSafe }
func (b *Base[T]) SetThreadSafe(threadSafe bool) { b.threadSafe = threadSafe }

func (b *Base[T]) ExecuteDependencies() []SystemID                   { return b.executeAfter }
func (b *Base[T]) AccessDependencies() map[SystemID]AccessDependency { return b.access }

// DependOn records an ordering and/or access dependency on target.
// ExecuteBefore is stored as an ExecuteAfter edge on target naming this
// system, so every edge points from dependent to dependency. Calls after
// FinalizeSystemList are ignored.
func (b *Base[T]) DependOn(target SystemID, order OrderDependency, access AccessDependency, opts ...DependencyOption) {
	b.mustBeAttached()
	m := b.manager
	if m.final {
		m.log.Warn("dependency declared after finalize ignored",
			zap.String("system", b.name()), zap.Uint16("target", uint16(target)))
		return
	}
	var cfg dependencyConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	switch order {
	case ExecuteAfter:
		if !slices.Contains(b.executeAfter, target) {
			b.executeAfter = append(b.executeAfter, target)
		}
	case ExecuteBefore:
		dep := m.GetSystem(target)
		dep.DependOn(b.id, ExecuteAfter, NoAccessDependency)
	}

	if access != NoAccessDependency {
		// A read-write declaration is never downgraded by a later read one.
		if cur := b.access[target]; cur < access {
			b.access[target] = access
		}
	}

	if cfg.autoAdd && !slices.Contains(b.autoAdd, target) {
		b.autoAdd = append(b.autoAdd, target)
	}
}

// DependOnSystem is DependOn with the target resolved by its data or
// system type.
func DependOnSystem[T any](s System, order OrderDependency, access AccessDependency, opts ...DependencyOption) {
	s.DependOn(SystemIDOf[T](s.Manager()), order, access, opts...)
}

// Data returns entity id's data in the system registered for D, from inside
// system s. s must be D's system or have declared an access dependency on it.
func Data[D any](s System, id EntityID) *D {
	m := s.Manager()
	target := SystemIDOf[D](m)
	if target != s.ID() {
		if _, ok := s.AccessDependencies()[target]; !ok {
			m.fatal("access to undeclared dependency",
				zap.String("system", s.Name()),
				zap.String("target", m.registry.get(target).Name()))
		}
	}
	data, _ := m.registry.get(target).DataAsAny(id).(*D)
	return data
}
