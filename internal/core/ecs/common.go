package ecs

import "math"

// SystemID identifies a registered system. IDs are assigned sequentially at
// registration and stay stable for the lifetime of the Manager.
type SystemID uint16

// InvalidSystem is returned when no system matches a lookup or claim.
const InvalidSystem SystemID = math.MaxUint16

// OrderDependency constrains when a system updates relative to another one
// within a single tick.
type OrderDependency uint8

const (
	NoOrderDependency OrderDependency = iota
	ExecuteBefore
	ExecuteAfter
)

func (o OrderDependency) String() string {
	switch o {
	case ExecuteBefore:
		return "execute-before"
	case ExecuteAfter:
		return "execute-after"
	default:
		return "no-order"
	}
}

// AccessDependency declares how a system touches another system's data
// during its own update.
type AccessDependency uint8

const (
	NoAccessDependency AccessDependency = iota
	ReadAccess
	ReadWriteAccess
)

func (a AccessDependency) String() string {
	switch a {
	case ReadAccess:
		return "read"
	case ReadWriteAccess:
		return "read-write"
	default:
		return "no-access"
	}
}

// DependencyOption tweaks a single DependOn declaration.
type DependencyOption func(*dependencyConfig)

type dependencyConfig struct {
	autoAdd bool
}

// AutoAdd makes every entity added to the declaring system also receive data
// in the target system, before the declaring system's InitEntity runs.
func AutoAdd() DependencyOption {
	return func(c *dependencyConfig) {
		c.autoAdd = true
	}
}
