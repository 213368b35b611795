// Package snapshot captures every system's exported entity data and restores
// it into a manager with the same systems registered.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/ecsrt/internal/core/ecs"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrCorrupt       = errors.New("snapshot record digest mismatch")
	ErrUnknownSystem = errors.New("snapshot names an unregistered system")
)

// Record is one entity's data in one system. A record with an empty System
// only carries the entity itself: it had no data in any system.
type Record struct {
	Entity uint64
	System string
	Data   []byte
	Digest [blake2b.Size256]byte
}

type Snapshot struct {
	ID      uuid.UUID
	Tick    uint64
	TakenAt time.Time
	Records []Record
}

// Capture exports every live entity's data, entity-major and in system
// registration order. Records carry a BLAKE2b-256 digest of their data. An
// entity without data in any system still gets one record with an empty
// System so Restore recreates it. Must not run during a tick.
func Capture(m *ecs.Manager, tick uint64) (*Snapshot, error) {
	snap := &Snapshot{
		ID:      uuid.New(),
		Tick:    tick,
		TakenAt: time.Now().UTC(),
	}
	systems := m.Systems()
	for id := range m.Entities() {
		found := false
		for _, s := range systems {
			if !s.HasDataForEntity(id) {
				continue
			}
			raw, err := s.ExportRawData(id)
			if err != nil {
				return nil, fmt.Errorf("capture %s/%d: %w", s.Name(), id, err)
			}
			snap.Records = append(snap.Records, Record{
				Entity: uint64(id),
				System: s.Name(),
				Data:   raw,
				Digest: blake2b.Sum256(raw),
			})
			found = true
		}
		if !found {
			snap.Records = append(snap.Records, Record{
				Entity: uint64(id),
				Digest: blake2b.Sum256(nil),
			})
		}
	}
	return snap, nil
}

// Entities returns the number of distinct entities in the snapshot.
func (s *Snapshot) Entities() int {
	seen := make(map[uint64]struct{})
	for _, r := range s.Records {
		seen[r.Entity] = struct{}{}
	}
	return len(seen)
}

// Digest hashes the ordered record list into a single checksum.
func (s *Snapshot) Digest() [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], s.Tick)
	h.Write(buf[:])
	for _, r := range s.Records {
		binary.LittleEndian.PutUint64(buf[:], r.Entity)
		h.Write(buf[:])
		h.Write([]byte(r.System))
		h.Write([]byte{0})
		h.Write(r.Digest[:])
	}
	var out [blake2b.Size256]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Verify checks every record against its digest.
func (s *Snapshot) Verify() error {
	for i, r := range s.Records {
		if blake2b.Sum256(r.Data) != r.Digest {
			return fmt.Errorf("%w: record %d (%s/%d)", ErrCorrupt, i, r.System, r.Entity)
		}
	}
	return nil
}

// Restore recreates the snapshot's entities in m under fresh ids and returns
// the old-to-new id mapping. Nothing is created unless every record verifies
// and names a registered system; a failing import removes what was created.
// Must not run during a tick.
func Restore(m *ecs.Manager, snap *Snapshot) (map[uint64]ecs.EntityID, error) {
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	systems := make([]ecs.System, len(snap.Records))
	for i, r := range snap.Records {
		if r.System == "" {
			continue
		}
		s := m.SystemByName(r.System)
		if s == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSystem, r.System)
		}
		systems[i] = s
	}

	ids := make(map[uint64]ecs.EntityID)
	for i, r := range snap.Records {
		id, ok := ids[r.Entity]
		if !ok {
			id = m.AllocateNewEntity()
			ids[r.Entity] = id
		}
		if systems[i] == nil {
			continue
		}
		if err := systems[i].AddFromRawData(id, r.Data); err != nil {
			for _, created := range ids {
				m.DeleteEntityImmediately(created)
			}
			return nil, fmt.Errorf("restore %s/%d: %w", r.System, r.Entity, err)
		}
	}
	return ids, nil
}
