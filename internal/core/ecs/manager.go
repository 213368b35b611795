package ecs

import (
	"fmt"
	"iter"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultMaxWorkerThreads is the worker pool size used unless overridden.
const DefaultMaxWorkerThreads = 2

// EntityFactory builds an entity from an opaque blob by adding it to the
// appropriate systems.
type EntityFactory interface {
	CreateEntityFromData(data []byte, m *Manager) (EntityID, error)
}

// Manager is the top-level container. It owns the entity pool, the system
// registry, the deferred deletion queue and the tick scheduler.
//
// Registration, finalize, entity allocation and immediate deletion belong to
// the driving goroutine and must not overlap a running tick. DeleteEntity and
// the read-only queries may be called from system updates.
type Manager struct {
	log        *zap.Logger
	registry   *Registry
	final      bool
	maxWorkers int
	factory    EntityFactory

	entityMu sync.RWMutex
	pool     *EntityPool

	deleteMu    sync.Mutex
	marked      map[EntityID]struct{}
	deleteQueue []EntityID

	sched *scheduler
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMaxWorkerThreads sets the worker pool size started by FinalizeSystemList.
func WithMaxWorkerThreads(n int) Option {
	return func(m *Manager) {
		m.maxWorkers = max(n, 0)
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:         zap.NewNop(),
		registry:    NewRegistry(),
		maxWorkers:  DefaultMaxWorkerThreads,
		pool:        NewEntityPool(),
		marked:      make(map[EntityID]struct{}, 64),
		deleteQueue: make([]EntityID, 0, 64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Logger() *zap.Logger { return m.log }

// fatal logs msg and panics. It is reserved for broken registration or
// dependency configuration, which cannot be recovered from mid-tick.
func (m *Manager) fatal(msg string, fields ...zap.Field) {
	m.log.Error(msg, fields...)
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		panic("ecs: " + msg)
	}
	panic(fmt.Sprintf("ecs: %s %v", msg, enc.Fields))
}

// SetMaxWorkerThreads sets the worker pool size. It has no effect once the
// system list is final.
func (m *Manager) SetMaxWorkerThreads(n int) {
	if m.final {
		m.log.Warn("SetMaxWorkerThreads after finalize ignored", zap.Int("workers", n))
		return
	}
	m.maxWorkers = max(n, 0)
}

func (m *Manager) MaxWorkerThreads() int { return m.maxWorkers }

// ── Systems ────────────────────────────────────────────────────────

// RegisterSystem assigns s the next SystemID, binds its system and data types
// for typed lookup, and runs its Init hook.
func (m *Manager) RegisterSystem(s System) SystemID {
	if m.final {
		m.fatal("RegisterSystem after FinalizeSystemList", zap.String("system", s.Name()))
	}
	if m.registry.lookupName(s.Name()) != InvalidSystem {
		m.fatal("system name already registered", zap.String("system", s.Name()))
	}
	id := m.registry.add(s)
	if id == InvalidSystem {
		m.fatal("system type already registered or id space exhausted",
			zap.String("type", reflect.TypeOf(s).String()))
	}
	s.attach(m, id, s)
	m.registry.bindName(s)
	m.log.Debug("system registered", zap.String("system", s.Name()), zap.Uint16("id", uint16(id)))
	s.Init()
	return id
}

// FinalizeSystemList runs every system's DeclareDependencies once in
// registration order, validates the resulting graph, freezes the registry
// and starts the worker pool.
func (m *Manager) FinalizeSystemList() {
	if m.final {
		m.log.Warn("FinalizeSystemList called twice")
		return
	}
	for _, s := range m.registry.systems {
		s.DeclareDependencies()
	}
	m.validateDependencies()
	m.final = true
	m.sched = newScheduler(m)
	m.sched.start(m.maxWorkers)
	m.log.Debug("system list finalized",
		zap.Int("systems", m.registry.len()), zap.Int("workers", m.maxWorkers))
}

func (m *Manager) IsSystemListFinal() bool { return m.final }

// GetSystem returns the system registered under id. An unknown id is fatal.
func (m *Manager) GetSystem(id SystemID) System {
	s := m.registry.get(id)
	if s == nil {
		m.fatal("unknown system id", zap.Uint16("id", uint16(id)))
	}
	return s
}

// SystemByName returns the system registered under name, or nil.
func (m *Manager) SystemByName(name string) System {
	return m.registry.get(m.registry.lookupName(name))
}

func (m *Manager) SystemCount() int { return m.registry.len() }

// Systems returns the registered systems in registration order.
func (m *Manager) Systems() []System {
	out := make([]System, m.registry.len())
	copy(out, m.registry.systems)
	return out
}

// ── Entities ───────────────────────────────────────────────────────

// AllocateNewEntity returns an id unique among live entities.
func (m *Manager) AllocateNewEntity() EntityID {
	m.entityMu.Lock()
	defer m.entityMu.Unlock()
	return m.pool.Create()
}

// IsEntityValid reports whether id is live. Entities marked for deletion stay
// valid until DeleteMarkedEntities removes them.
func (m *Manager) IsEntityValid(id EntityID) bool {
	m.entityMu.RLock()
	defer m.entityMu.RUnlock()
	return m.pool.Alive(id)
}

func (m *Manager) IsEntityMarkedForDeletion(id EntityID) bool {
	m.deleteMu.Lock()
	defer m.deleteMu.Unlock()
	_, ok := m.marked[id]
	return ok
}

func (m *Manager) EntityCount() int {
	m.entityMu.RLock()
	defer m.entityMu.RUnlock()
	return m.pool.Len()
}

// Entities yields the entities live at the time of the call.
func (m *Manager) Entities() iter.Seq[EntityID] {
	m.entityMu.RLock()
	ids := make([]EntityID, 0, m.pool.Len())
	for id := range m.pool.All() {
		ids = append(ids, id)
	}
	m.entityMu.RUnlock()
	return func(yield func(EntityID) bool) {
		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

// DeleteEntity queues id for removal at the end of the current tick. Marking
// an entity twice is a no-op. Safe to call from system updates.
func (m *Manager) DeleteEntity(id EntityID) {
	if !m.IsEntityValid(id) {
		return
	}
	m.deleteMu.Lock()
	defer m.deleteMu.Unlock()
	if _, ok := m.marked[id]; ok {
		return
	}
	m.marked[id] = struct{}{}
	m.deleteQueue = append(m.deleteQueue, id)
}

// DeleteEntityImmediately removes id from every system and releases it.
// It must not run concurrently with a tick.
func (m *Manager) DeleteEntityImmediately(id EntityID) {
	if !m.IsEntityValid(id) {
		return
	}
	m.removeAllComponents(id)
	m.releaseEntity(id)
	m.deleteMu.Lock()
	delete(m.marked, id)
	m.deleteMu.Unlock()
}

// DeleteMarkedEntities flushes the deletion queue. UpdateSystems calls it
// after every tick; it must never run during one.
func (m *Manager) DeleteMarkedEntities() {
	m.deleteMu.Lock()
	queue := m.deleteQueue
	m.deleteQueue = make([]EntityID, 0, cap(queue))
	clear(m.marked)
	m.deleteMu.Unlock()

	for _, id := range queue {
		if !m.IsEntityValid(id) {
			continue // deleted immediately after being marked
		}
		m.removeAllComponents(id)
		m.releaseEntity(id)
	}
}

func (m *Manager) releaseEntity(id EntityID) {
	m.entityMu.Lock()
	m.pool.Destroy(id)
	m.entityMu.Unlock()
}

func (m *Manager) removeAllComponents(id EntityID) {
	for _, s := range m.registry.systems {
		if s.HasDataForEntity(id) {
			s.RemoveEntity(id)
		}
	}
}

// ── Components ─────────────────────────────────────────────────────

// AddComponent adds entity to system id. Adding twice is a no-op.
func (m *Manager) AddComponent(entity EntityID, id SystemID) {
	m.GetSystem(id).AddEntityGenerically(entity)
}

// RemoveComponent removes entity's data from system id when present.
func (m *Manager) RemoveComponent(entity EntityID, id SystemID) {
	if s := m.GetSystem(id); s.HasDataForEntity(entity) {
		s.RemoveEntity(entity)
	}
}

func (m *Manager) HasComponent(entity EntityID, id SystemID) bool {
	s := m.registry.get(id)
	return s != nil && s.HasDataForEntity(entity)
}

// GetComponentDataAsAny returns entity's data in system id as a pointer
// wrapped in an interface, or nil.
func (m *Manager) GetComponentDataAsAny(entity EntityID, id SystemID) any {
	s := m.registry.get(id)
	if s == nil {
		return nil
	}
	return s.DataAsAny(entity)
}

// ── Factory ────────────────────────────────────────────────────────

func (m *Manager) SetEntityFactory(f EntityFactory) { m.factory = f }

// CreateEntityFromData delegates to the configured EntityFactory.
func (m *Manager) CreateEntityFromData(data []byte) (EntityID, error) {
	if m.factory == nil {
		m.fatal("CreateEntityFromData without an entity factory")
	}
	return m.factory.CreateEntityFromData(data, m)
}

// ── Ticks ──────────────────────────────────────────────────────────

// UpdateSystems runs one tick: every system updates exactly once under the
// scheduler, then marked entities are deleted.
func (m *Manager) UpdateSystems(dt time.Duration) {
	if !m.final {
		m.fatal("UpdateSystems before FinalizeSystemList")
	}
	m.sched.tick(dt)
	m.DeleteMarkedEntities()
}

// TickCount returns the number of completed ticks.
func (m *Manager) TickCount() uint64 {
	if m.sched == nil {
		return 0
	}
	return m.sched.state().ticks
}

// Shutdown stops the worker pool. Workers exit after their current claim.
func (m *Manager) Shutdown() {
	if m.sched != nil {
		m.sched.stop()
	}
}

// Clear stops the workers, clears and cleans up every system, and forgets all
// systems and entities. The manager can be reused from registration on.
func (m *Manager) Clear() {
	m.Shutdown()
	for _, s := range m.registry.systems {
		s.ClearComponentData()
		s.Cleanup()
	}
	m.registry.reset()

	m.entityMu.Lock()
	m.pool.Reset()
	m.entityMu.Unlock()

	m.deleteMu.Lock()
	m.deleteQueue = m.deleteQueue[:0]
	clear(m.marked)
	m.deleteMu.Unlock()

	m.final = false
	m.sched = nil
}

// ── Typed access ───────────────────────────────────────────────────

// SystemIDOf returns the id bound to T, which may be a system type or a data
// type. Looking up an unregistered type is fatal.
func SystemIDOf[T any](m *Manager) SystemID {
	t := reflect.TypeFor[T]()
	id := m.registry.lookupType(t)
	if id == InvalidSystem {
		m.fatal("no system registered for type", zap.String("type", t.String()))
	}
	return id
}

// SystemOf returns the registered system of type S.
func SystemOf[S System](m *Manager) S {
	return m.GetSystem(SystemIDOf[S](m)).(S)
}

// GetComponentData returns entity's data of type T, or nil.
func GetComponentData[T any](m *Manager, entity EntityID) *T {
	data, _ := m.GetComponentDataAsAny(entity, SystemIDOf[T](m)).(*T)
	return data
}

// AddComponent adds entity to the system holding T and returns its data.
func AddComponent[T any](m *Manager, entity EntityID) *T {
	id := SystemIDOf[T](m)
	m.AddComponent(entity, id)
	data, _ := m.GetComponentDataAsAny(entity, id).(*T)
	return data
}
