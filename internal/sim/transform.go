package sim

import (
	"math"
	"time"

	"github.com/l1jgo/ecsrt/internal/core/ecs"
)

// Transform is an entity's position and heading (radians).
type Transform struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Rotation float64 `yaml:"rotation"`
}

type TransformSystem struct {
	ecs.Base[Transform]
}

func NewTransformSystem() *TransformSystem { return &TransformSystem{} }

func (s *TransformSystem) Name() string { return "transform" }

func (s *TransformSystem) DeclareDependencies() {
	s.SetThreadSafe(true)
}

// UpdateAllEntities keeps every rotation within [0, 2π).
func (s *TransformSystem) UpdateAllEntities(time.Duration) {
	for _, t := range s.Store().All() {
		t.Rotation = normalizeAngle(t.Rotation)
	}
}

func (s *TransformSystem) AddFromRawData(id ecs.EntityID, raw []byte) error {
	return importYAML(&s.Base, s.Name(), id, raw)
}

func (s *TransformSystem) ExportRawData(id ecs.EntityID) ([]byte, error) {
	return exportYAML(&s.Base, s.Name(), id)
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
