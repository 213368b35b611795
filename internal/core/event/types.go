package event

import (
	"github.com/google/uuid"
	"github.com/l1jgo/ecsrt/internal/core/ecs"
)

// EntityExpired is emitted when a lifetime runs out and the entity is
// queued for deletion.
type EntityExpired struct {
	Entity ecs.EntityID
}

// SnapshotSaved is emitted after a snapshot has been stored.
type SnapshotSaved struct {
	ID      uuid.UUID
	Tick    uint64
	Records int
}
