package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/ecsrt/internal/snapshot"
	"go.uber.org/zap"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrSnapshotDigest   = errors.New("stored snapshot digest mismatch")
)

// SnapshotInfo is a snapshot header without its records.
type SnapshotInfo struct {
	ID          uuid.UUID
	Tick        uint64
	TakenAt     time.Time
	EntityCount int
}

type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// SaveSnapshot writes the header and every record in one transaction.
func (r *SnapshotRepo) SaveSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	digest := snap.Digest()
	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshots (id, tick, taken_at, entity_count, digest)
		 VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, int64(snap.Tick), snap.TakenAt, snap.Entities(), digest[:],
	); err != nil {
		return fmt.Errorf("snapshot insert: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"snapshot_records"},
		[]string{"snapshot_id", "seq", "entity", "system", "data", "digest"},
		pgx.CopyFromSlice(len(snap.Records), func(i int) ([]any, error) {
			rec := snap.Records[i]
			return []any{snap.ID, int32(i), int64(rec.Entity), rec.System, rec.Data, rec.Digest[:]}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("snapshot records copy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("snapshot commit: %w", err)
	}
	r.db.log.Debug("snapshot saved",
		zap.Stringer("id", snap.ID),
		zap.Uint64("tick", snap.Tick),
		zap.Int("records", len(snap.Records)))
	return nil
}

// LoadSnapshot reads a snapshot and checks the records against the stored
// header digest.
func (r *SnapshotRepo) LoadSnapshot(ctx context.Context, id uuid.UUID) (*snapshot.Snapshot, error) {
	snap := &snapshot.Snapshot{ID: id}
	var (
		tick   int64
		stored []byte
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT tick, taken_at, digest FROM snapshots WHERE id = $1`, id,
	).Scan(&tick, &snap.TakenAt, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	snap.Tick = uint64(tick)

	rows, err := r.db.Pool.Query(ctx,
		`SELECT entity, system, data, digest FROM snapshot_records
		 WHERE snapshot_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load snapshot records %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec    snapshot.Record
			entity int64
			digest []byte
		)
		if err := rows.Scan(&entity, &rec.System, &rec.Data, &digest); err != nil {
			return nil, fmt.Errorf("scan snapshot record: %w", err)
		}
		rec.Entity = uint64(entity)
		copy(rec.Digest[:], digest)
		snap.Records = append(snap.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot records %s: %w", id, err)
	}

	if got := snap.Digest(); !bytes.Equal(got[:], stored) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotDigest, id)
	}
	return snap, nil
}

// LatestSnapshot loads the most recently taken snapshot.
func (r *SnapshotRepo) LatestSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	var id uuid.UUID
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id FROM snapshots ORDER BY taken_at DESC, tick DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return r.LoadSnapshot(ctx, id)
}

// ListSnapshots returns up to limit headers, newest first.
func (r *SnapshotRepo) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, tick, taken_at, entity_count FROM snapshots
		 ORDER BY taken_at DESC, tick DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var result []SnapshotInfo
	for rows.Next() {
		var (
			info SnapshotInfo
			tick int64
		)
		if err := rows.Scan(&info.ID, &tick, &info.TakenAt, &info.EntityCount); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.Tick = uint64(tick)
		result = append(result, info)
	}
	return result, rows.Err()
}

// PruneSnapshots deletes all but the newest keep snapshots and returns how
// many were removed. Records go with them via ON DELETE CASCADE.
func (r *SnapshotRepo) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM snapshots WHERE id IN (
		     SELECT id FROM snapshots ORDER BY taken_at DESC, tick DESC OFFSET $1
		 )`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
