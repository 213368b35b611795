// Package factory builds entities from YAML blueprints.
package factory

import (
	"errors"
	"fmt"

	"github.com/l1jgo/ecsrt/internal/core/ecs"
	"github.com/l1jgo/ecsrt/internal/data"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownBlueprint = errors.New("unknown blueprint")
	ErrUnknownComponent = errors.New("unknown component")
	ErrEmptyBlueprint   = errors.New("blueprint has no components")
)

// Blueprints is an ecs.EntityFactory reading documents of the form
//
//	components:
//	  <system name>: <that system's raw data>
//
// Each component is handed to the named system's AddFromRawData.
type Blueprints struct {
	table *data.BlueprintTable
	log   *zap.Logger
}

func New(table *data.BlueprintTable, log *zap.Logger) *Blueprints {
	if log == nil {
		log = zap.NewNop()
	}
	return &Blueprints{table: table, log: log}
}

// CreateEntityFromData allocates an entity and populates every listed
// component. On failure the partial entity is deleted and InvalidEntity is
// returned.
func (f *Blueprints) CreateEntityFromData(raw []byte, m *ecs.Manager) (ecs.EntityID, error) {
	var doc struct {
		Components map[string]yaml.Node `yaml:"components"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return ecs.InvalidEntity, fmt.Errorf("decode entity data: %w", err)
	}
	if len(doc.Components) == 0 {
		return ecs.InvalidEntity, ErrEmptyBlueprint
	}

	bp := data.Blueprint{Components: doc.Components}
	names := bp.ComponentNames()
	systems := make([]ecs.System, len(names))
	for i, name := range names {
		s := m.SystemByName(name)
		if s == nil {
			return ecs.InvalidEntity, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
		}
		systems[i] = s
	}

	id := m.AllocateNewEntity()
	for i, name := range names {
		node := doc.Components[name]
		body, err := yaml.Marshal(&node)
		if err != nil {
			m.DeleteEntityImmediately(id)
			return ecs.InvalidEntity, fmt.Errorf("encode component %s: %w", name, err)
		}
		if err := systems[i].AddFromRawData(id, body); err != nil {
			m.DeleteEntityImmediately(id)
			return ecs.InvalidEntity, err
		}
	}
	return id, nil
}

// Spawn creates one entity from the named blueprint.
func (f *Blueprints) Spawn(m *ecs.Manager, name string) (ecs.EntityID, error) {
	bp := f.table.Get(name)
	if bp == nil {
		return ecs.InvalidEntity, fmt.Errorf("%w: %s", ErrUnknownBlueprint, name)
	}
	raw, err := bp.Encode()
	if err != nil {
		return ecs.InvalidEntity, err
	}
	id, err := f.CreateEntityFromData(raw, m)
	if err != nil {
		return ecs.InvalidEntity, fmt.Errorf("spawn %s: %w", name, err)
	}
	return id, nil
}

// SpawnN creates count entities from the named blueprint and stops at the
// first failure.
func (f *Blueprints) SpawnN(m *ecs.Manager, name string, count int) ([]ecs.EntityID, error) {
	ids := make([]ecs.EntityID, 0, count)
	for i := 0; i < count; i++ {
		id, err := f.Spawn(m, name)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	f.log.Debug("spawned blueprint", zap.String("blueprint", name), zap.Int("count", len(ids)))
	return ids, nil
}
