package ecs

import (
	"strings"

	"go.uber.org/zap"
)

// validateDependencies checks that every declared target is registered and
// that the execute-after edges form a DAG. A cycle would leave every system
// on it permanently ineligible, deadlocking the first tick.
func (m *Manager) validateDependencies() {
	n := m.registry.len()
	for _, s := range m.registry.systems {
		for _, dep := range s.ExecuteDependencies() {
			if int(dep) >= n {
				m.fatal("execute-after dependency on unregistered system",
					zap.String("system", s.Name()), zap.Uint16("target", uint16(dep)))
			}
		}
		for dep := range s.AccessDependencies() {
			if int(dep) >= n {
				m.fatal("access dependency on unregistered system",
					zap.String("system", s.Name()), zap.Uint16("target", uint16(dep)))
			}
		}
	}
	if cycle := m.findCycle(); cycle != nil {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = m.registry.get(id).Name()
		}
		m.fatal("execute-after dependency cycle",
			zap.String("cycle", strings.Join(names, " -> ")))
	}
}

// findCycle returns the systems on one execute-after cycle, first system
// repeated at the end, or nil when the graph is acyclic.
func (m *Manager) findCycle() []SystemID {
	const (
		white = iota
		grey
		black
	)
	n := m.registry.len()
	color := make([]uint8, n)
	stack := make([]SystemID, 0, n)

	var visit func(id SystemID) []SystemID
	visit = func(id SystemID) []SystemID {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range m.registry.get(id).ExecuteDependencies() {
			switch color[dep] {
			case grey:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle := append([]SystemID(nil), stack[start:]...)
				return append(cycle, dep)
			case white:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for id := 0; id < n; id++ {
		if color[id] == white {
			if c := visit(SystemID(id)); c != nil {
				return c
			}
		}
	}
	return nil
}
