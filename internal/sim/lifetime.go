package sim

import (
	"time"

	"github.com/l1jgo/ecsrt/internal/core/ecs"
	"github.com/l1jgo/ecsrt/internal/core/event"
)

// Lifetime counts down and deletes its entity once it reaches zero.
type Lifetime struct {
	Seconds float64 `yaml:"seconds"`
}

// DefaultLifetime applies when an entity joins without an explicit duration.
const DefaultLifetime = 5.0

type LifetimeSystem struct {
	ecs.Base[Lifetime]
	expired uint64
	bus     *event.Bus
}

func NewLifetimeSystem() *LifetimeSystem { return &LifetimeSystem{} }

func (s *LifetimeSystem) Name() string { return "lifetime" }

// SetEventBus makes the system emit event.EntityExpired for every entity it
// times out.
func (s *LifetimeSystem) SetEventBus(b *event.Bus) { s.bus = b }

func (s *LifetimeSystem) DeclareDependencies() {
	s.SetThreadSafe(true)
}

func (s *LifetimeSystem) InitEntity(id ecs.EntityID) {
	s.GetComponentData(id).Seconds = DefaultLifetime
}

// UpdateAllEntities marks expired entities for deletion; they leave every
// system once the tick ends.
func (s *LifetimeSystem) UpdateAllEntities(dt time.Duration) {
	sec := dt.Seconds()
	m := s.Manager()
	for id, l := range s.Store().All() {
		if m.IsEntityMarkedForDeletion(id) {
			continue
		}
		l.Seconds -= sec
		if l.Seconds <= 0 {
			m.DeleteEntity(id)
			s.expired++
			event.Emit(s.bus, event.EntityExpired{Entity: id})
		}
	}
}

// Expired returns how many entities this system has timed out.
func (s *LifetimeSystem) Expired() uint64 { return s.expired }

func (s *LifetimeSystem) AddFromRawData(id ecs.EntityID, raw []byte) error {
	return importYAML(&s.Base, s.Name(), id, raw)
}

func (s *LifetimeSystem) ExportRawData(id ecs.EntityID) ([]byte, error) {
	return exportYAML(&s.Base, s.Name(), id)
}
