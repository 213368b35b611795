package sim

import (
	"time"

	"github.com/l1jgo/ecsrt/internal/core/ecs"
	"github.com/l1jgo/ecsrt/internal/scripting"
	"go.uber.org/zap"
)

// Script names the Lua steering function that drives an entity.
type Script struct {
	Behaviour string `yaml:"behaviour"`
}

// ScriptSystem runs Lua steering before physics integrates. The Lua VM is
// single-threaded, so this system always updates on the driving goroutine.
type ScriptSystem struct {
	ecs.Base[Script]
	engine *scripting.Engine
	log    *zap.Logger
	failed map[string]bool
}

// NewScriptSystem returns a script system backed by engine. A nil engine
// leaves scripted entities untouched.
func NewScriptSystem(engine *scripting.Engine, log *zap.Logger) *ScriptSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScriptSystem{engine: engine, log: log, failed: make(map[string]bool)}
}

func (s *ScriptSystem) Name() string { return "script" }

func (s *ScriptSystem) DeclareDependencies() {
	ecs.DependOnSystem[Physics](s, ecs.ExecuteBefore, ecs.ReadWriteAccess, ecs.AutoAdd())
	ecs.DependOnSystem[Transform](s, ecs.NoOrderDependency, ecs.ReadAccess)
}

func (s *ScriptSystem) UpdateAllEntities(dt time.Duration) {
	if s.engine == nil {
		return
	}
	sec := dt.Seconds()
	for id, sc := range s.Store().All() {
		if sc.Behaviour == "" {
			continue
		}
		p := ecs.Data[Physics](s, id)
		t := ecs.Data[Transform](s, id)
		if p == nil || t == nil {
			continue
		}
		vx, vy, err := s.engine.Steer(sc.Behaviour, scripting.SteerInput{
			Entity: uint64(id),
			X:      t.X,
			Y:      t.Y,
			VX:     p.VX,
			VY:     p.VY,
			DT:     sec,
		})
		if err != nil {
			// One warning per behaviour; a broken script would otherwise log every tick.
			if !s.failed[sc.Behaviour] {
				s.failed[sc.Behaviour] = true
				s.log.Warn("steering failed", zap.String("behaviour", sc.Behaviour), zap.Error(err))
			}
			continue
		}
		p.VX, p.VY = vx, vy
	}
}

func (s *ScriptSystem) AddFromRawData(id ecs.EntityID, raw []byte) error {
	return importYAML(&s.Base, s.Name(), id, raw)
}

func (s *ScriptSystem) ExportRawData(id ecs.EntityID) ([]byte, error) {
	return exportYAML(&s.Base, s.Name(), id)
}
