package sim

import (
	"time"

	"github.com/l1jgo/ecsrt/internal/core/ecs"
)

// Physics is a velocity, an acceleration and an angular velocity, all per
// second.
type Physics struct {
	VX   float64 `yaml:"vx"`
	VY   float64 `yaml:"vy"`
	AX   float64 `yaml:"ax"`
	AY   float64 `yaml:"ay"`
	Spin float64 `yaml:"spin"`
}

// PhysicsSystem integrates motion into the entity's Transform. Every physics
// entity gets a Transform.
type PhysicsSystem struct {
	ecs.Base[Physics]
}

func NewPhysicsSystem() *PhysicsSystem { return &PhysicsSystem{} }

func (s *PhysicsSystem) Name() string { return "physics" }

func (s *PhysicsSystem) DeclareDependencies() {
	ecs.DependOnSystem[Transform](s, ecs.ExecuteBefore, ecs.ReadWriteAccess, ecs.AutoAdd())
	s.SetThreadSafe(true)
}

func (s *PhysicsSystem) UpdateAllEntities(dt time.Duration) {
	sec := dt.Seconds()
	for id, p := range s.Store().All() {
		t := ecs.Data[Transform](s, id)
		if t == nil {
			continue
		}
		p.VX += p.AX * sec
		p.VY += p.AY * sec
		t.X += p.VX * sec
		t.Y += p.VY * sec
		t.Rotation += p.Spin * sec
	}
}

func (s *PhysicsSystem) AddFromRawData(id ecs.EntityID, raw []byte) error {
	return importYAML(&s.Base, s.Name(), id, raw)
}

func (s *PhysicsSystem) ExportRawData(id ecs.EntityID) ([]byte, error) {
	return exportYAML(&s.Base, s.Name(), id)
}
