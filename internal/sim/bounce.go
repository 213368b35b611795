package sim

import (
	"time"

	"github.com/l1jgo/ecsrt/internal/core/ecs"
)

// Bounce reflects an entity off the arena edges, scaling the reflected
// velocity component by Restitution.
type Bounce struct {
	Restitution float64 `yaml:"restitution"`
}

type BounceSystem struct {
	ecs.Base[Bounce]
	width, height float64
}

func NewBounceSystem(width, height float64) *BounceSystem {
	return &BounceSystem{width: width, height: height}
}

func (s *BounceSystem) Name() string { return "bounce" }

func (s *BounceSystem) DeclareDependencies() {
	ecs.DependOnSystem[Physics](s, ecs.ExecuteAfter, ecs.ReadWriteAccess, ecs.AutoAdd())
	ecs.DependOnSystem[Transform](s, ecs.NoOrderDependency, ecs.ReadWriteAccess)
	s.SetThreadSafe(true)
}

func (s *BounceSystem) InitEntity(id ecs.EntityID) {
	s.GetComponentData(id).Restitution = 1
}

func (s *BounceSystem) UpdateAllEntities(time.Duration) {
	for id, b := range s.Store().All() {
		t := ecs.Data[Transform](s, id)
		p := ecs.Data[Physics](s, id)
		if t == nil || p == nil {
			continue
		}
		t.X, p.VX = reflectAxis(t.X, p.VX, s.width, b.Restitution)
		t.Y, p.VY = reflectAxis(t.Y, p.VY, s.height, b.Restitution)
	}
}

// reflectAxis folds pos back into [0, limit] and flips v when it crossed an
// edge while moving outward.
func reflectAxis(pos, v, limit, restitution float64) (float64, float64) {
	switch {
	case pos < 0:
		pos = -pos
		if v < 0 {
			v = -v * restitution
		}
	case pos > limit:
		pos = 2*limit - pos
		if v > 0 {
			v = -v * restitution
		}
	}
	if pos < 0 {
		pos = 0
	} else if pos > limit {
		pos = limit
	}
	return pos, v
}

func (s *BounceSystem) AddFromRawData(id ecs.EntityID, raw []byte) error {
	return importYAML(&s.Base, s.Name(), id, raw)
}

func (s *BounceSystem) ExportRawData(id ecs.EntityID) ([]byte, error) {
	return exportYAML(&s.Base, s.Name(), id)
}
