package ecs

import (
	"reflect"
	"strings"
)

// Registry is the system table: it owns registered systems in registration
// order and resolves them by id, by type (the system's own type or its data
// type) and by name.
type Registry struct {
	systems []System
	byType  map[reflect.Type]SystemID
	byName  map[string]SystemID
}

func NewRegistry() *Registry {
	return &Registry{
		systems: make([]System, 0, 16),
		byType:  make(map[reflect.Type]SystemID, 32),
		byName:  make(map[string]SystemID, 16),
	}
}

// add appends s and binds its type tags. It returns InvalidSystem when the id
// space is exhausted or one of the type tags is already bound.
func (r *Registry) add(s System) SystemID {
	if len(r.systems) >= int(InvalidSystem) {
		return InvalidSystem
	}
	sysType, dataType := reflect.TypeOf(s), s.dataType()
	if _, dup := r.byType[sysType]; dup {
		return InvalidSystem
	}
	if _, dup := r.byType[dataType]; dup {
		return InvalidSystem
	}
	id := SystemID(len(r.systems))
	r.systems = append(r.systems, s)
	r.byType[sysType] = id
	r.byType[dataType] = id
	return id
}

// bindName records s under its (case-insensitive) name once it is attached.
func (r *Registry) bindName(s System) {
	r.byName[strings.ToLower(s.Name())] = s.ID()
}

func (r *Registry) lookupType(t reflect.Type) SystemID {
	if id, ok := r.byType[t]; ok {
		return id
	}
	return InvalidSystem
}

func (r *Registry) lookupName(name string) SystemID {
	if id, ok := r.byName[strings.ToLower(name)]; ok {
		return id
	}
	return InvalidSystem
}

func (r *Registry) get(id SystemID) System {
	if int(id) >= len(r.systems) {
		return nil
	}
	return r.systems[id]
}

func (r *Registry) len() int { return len(r.systems) }

func (r *Registry) reset() {
	r.systems = r.systems[:0]
	clear(r.byType)
	clear(r.byName)
}
