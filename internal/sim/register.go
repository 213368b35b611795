package sim

import (
	"github.com/l1jgo/ecsrt/internal/core/ecs"
	"github.com/l1jgo/ecsrt/internal/scripting"
	"go.uber.org/zap"
)

// Arena bounds the bounce system.
type Arena struct {
	Width, Height float64
}

// Systems is the set of sim systems registered with one manager.
type Systems struct {
	Transform *TransformSystem
	Physics   *PhysicsSystem
	Lifetime  *LifetimeSystem
	Bounce    *BounceSystem
	Script    *ScriptSystem
}

// Register adds every sim system to m. The caller finalizes the list.
func Register(m *ecs.Manager, arena Arena, engine *scripting.Engine, log *zap.Logger) *Systems {
	s := &Systems{
		Transform: NewTransformSystem(),
		Physics:   NewPhysicsSystem(),
		Lifetime:  NewLifetimeSystem(),
		Bounce:    NewBounceSystem(arena.Width, arena.Height),
		Script:    NewScriptSystem(engine, log),
	}
	m.RegisterSystem(s.Transform)
	m.RegisterSystem(s.Physics)
	m.RegisterSystem(s.Lifetime)
	m.RegisterSystem(s.Bounce)
	m.RegisterSystem(s.Script)
	return s
}
