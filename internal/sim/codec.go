// Package sim holds the concrete systems the ecsrt host registers: a small
// 2D motion model driven by the scheduler.
package sim

import (
	"fmt"

	"github.com/l1jgo/ecsrt/internal/core/ecs"
	"gopkg.in/yaml.v3"
)

// importYAML adds id to b and decodes raw over the freshly initialised data.
// Empty input keeps the InitEntity defaults.
func importYAML[T any](b *ecs.Base[T], name string, id ecs.EntityID, raw []byte) error {
	data := b.AddEntity(id)
	if len(raw) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("%s: decode entity %d: %w", name, id, err)
	}
	return nil
}

func exportYAML[T any](b *ecs.Base[T], name string, id ecs.EntityID) ([]byte, error) {
	data := b.GetComponentData(id)
	if data == nil {
		return nil, nil
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: encode entity %d: %w", name, id, err)
	}
	return out, nil
}
