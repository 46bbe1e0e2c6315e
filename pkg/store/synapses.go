package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/denizumutdereli/neuralrag/pkg/apierr"
	"github.com/denizumutdereli/neuralrag/pkg/core"
)

const synapseColumns = `id, source_id, target_id, weight, type, metadata, fire_count, last_fired, created_at`

// CreateSynapse inserts a synapse if none exists on the (source, target,
// type) unique key — insert-if-absent, never upsert. If one already
// exists, the stored row is left unchanged and an apierr.Conflict error
// is returned.
func (s *Store) CreateSynapse(ctx context.Context, input core.SynapseCreateInput) (*core.Synapse, error) {
	syn, err := synapseFromInput(input)
	if err != nil {
		return nil, err
	}
	inserted, err := s.insertSynapseIfAbsent(ctx, s.db, syn)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, apierr.Wrap(apierr.Conflict, "synapse (%s, %s, %s) already exists", input.SourceID, input.TargetID, input.Type)
	}
	return syn, nil
}

// CreateSynapsesBatch inserts many synapses atomically, silently
// ignoring duplicates on the unique key.
func (s *Store) CreateSynapsesBatch(ctx context.Context, inputs []core.SynapseCreateInput) error {
	if len(inputs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "beginning batch synapse insert: %v", err)
	}
	defer tx.Rollback()

	for _, input := range inputs {
		syn, err := synapseFromInput(input)
		if err != nil {
			return err
		}
		if _, err := s.insertSynapseIfAbsent(ctx, tx, syn); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierr.Wrap(apierr.StoreFailure, "committing batch synapse insert: %v", err)
	}
	return nil
}

func synapseFromInput(input core.SynapseCreateInput) (*core.Synapse, error) {
	if input.SourceID == input.TargetID {
		return nil, apierr.Wrap(apierr.InvalidArgument, "synapse source and target must differ (%s)", input.SourceID)
	}
	if err := core.ValidateSynapseType(input.Type); err != nil {
		return nil, err
	}
	weight := core.ClampWeight(input.Weight)
	return &core.Synapse{
		ID:        core.NewSynapseID(),
		SourceID:  input.SourceID,
		TargetID:  input.TargetID,
		Weight:    weight,
		Type:      input.Type,
		Metadata:  input.Metadata,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *Store) insertSynapseIfAbsent(ctx context.Context, ex execer, syn *core.Synapse) (bool, error) {
	metadataJSON, err := encodeMetadata(syn.Metadata)
	if err != nil {
		return false, err
	}
	res, err := ex.ExecContext(ctx, `
INSERT INTO synapses(id, source_id, target_id, weight, type, metadata, fire_count, last_fired, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source_id, target_id, type) DO NOTHING`,
		string(syn.ID), string(syn.SourceID), string(syn.TargetID), syn.Weight, string(syn.Type),
		metadataJSON, syn.FireCount, nullableTime(syn.LastFired), formatTime(syn.CreatedAt))
	if err != nil {
		return false, apierr.Wrap(apierr.StoreFailure, "inserting synapse %s->%s: %v", syn.SourceID, syn.TargetID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apierr.Wrap(apierr.StoreFailure, "reading rows affected inserting synapse: %v", err)
	}
	return n > 0, nil
}

// GetOutgoing returns all synapses leaving neuronID, ordered by weight
// descending.
func (s *Store) GetOutgoing(ctx context.Context, neuronID core.NeuronID) ([]*core.Synapse, error) {
	return s.querySynapses(ctx, `WHERE source_id = ? ORDER BY weight DESC`, string(neuronID))
}

// GetIncoming returns all synapses entering neuronID, ordered by weight
// descending.
func (s *Store) GetIncoming(ctx context.Context, neuronID core.NeuronID) ([]*core.Synapse, error) {
	return s.querySynapses(ctx, `WHERE target_id = ? ORDER BY weight DESC`, string(neuronID))
}

// GetConnected returns all synapses touching neuronID as either
// endpoint, ordered by weight descending.
func (s *Store) GetConnected(ctx context.Context, neuronID core.NeuronID) ([]*core.Synapse, error) {
	return s.querySynapses(ctx, `WHERE source_id = ? OR target_id = ? ORDER BY weight DESC`, string(neuronID), string(neuronID))
}

func (s *Store) querySynapses(ctx context.Context, whereClause string, args ...any) ([]*core.Synapse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+synapseColumns+` FROM synapses `+whereClause, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "querying synapses: %v", err)
	}
	defer rows.Close()
	return scanSynapses(rows)
}

// AdjustWeight clamps a delta onto a synapse's weight. If synType is
// empty, all synapses on (source, target) are adjusted. On a positive
// delta, fire_count is bumped and last_fired set to now.
func (s *Store) AdjustWeight(ctx context.Context, source, target core.NeuronID, synType core.SynapseType, delta float64) error {
	where := `source_id = ? AND target_id = ?`
	args := []any{string(source), string(target)}
	if synType != "" {
		where += ` AND type = ?`
		args = append(args, string(synType))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, weight FROM synapses WHERE `+where, args...)
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "selecting synapses to adjust: %v", err)
	}
	type target2 struct {
		id     string
		weight float64
	}
	var targets []target2
	for rows.Next() {
		var t target2
		if err := rows.Scan(&t.id, &t.weight); err != nil {
			rows.Close()
			return apierr.Wrap(apierr.StoreFailure, "scanning synapse to adjust: %v", err)
		}
		targets = append(targets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return apierr.Wrap(apierr.StoreFailure, "iterating synapses to adjust: %v", err)
	}

	now := formatTime(time.Now().UTC())
	for _, t := range targets {
		newWeight := core.ClampWeight(t.weight + delta)
		if delta > 0 {
			_, err = s.db.ExecContext(ctx, `
UPDATE synapses SET weight = ?, fire_count = fire_count + 1, last_fired = ? WHERE id = ?`,
				newWeight, now, t.id)
		} else {
			_, err = s.db.ExecContext(ctx, `UPDATE synapses SET weight = ? WHERE id = ?`, newWeight, t.id)
		}
		if err != nil {
			return apierr.Wrap(apierr.StoreFailure, "updating synapse weight %s: %v", t.id, err)
		}
	}
	return nil
}

// DecaySynapses decrements the weight of every synapse of synType whose
// last_fired is older than daysOld days (or which has never fired, i.e.
// last_fired IS NULL, measured from created_at instead), clamping at 0.
// Returns the count of rows mutated. Used by the Learner's periodic
// decay job; structural synapse types are never passed here.
func (s *Store) DecaySynapses(ctx context.Context, synType core.SynapseType, daysOld int, delta float64) (int, error) {
	cutoff := formatTime(time.Now().UTC().AddDate(0, 0, -daysOld))

	rows, err := s.db.QueryContext(ctx, `
SELECT id, weight FROM synapses
WHERE type = ? AND COALESCE(last_fired, created_at) < ?`, string(synType), cutoff)
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, "selecting synapses to decay: %v", err)
	}
	type row struct {
		id     string
		weight float64
	}
	var targets []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.weight); err != nil {
			rows.Close()
			return 0, apierr.Wrap(apierr.StoreFailure, "scanning synapse to decay: %v", err)
		}
		targets = append(targets, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, "iterating synapses to decay: %v", err)
	}

	for _, t := range targets {
		newWeight := core.ClampWeight(t.weight - delta)
		if _, err := s.db.ExecContext(ctx, `UPDATE synapses SET weight = ? WHERE id = ?`, newWeight, t.id); err != nil {
			return 0, apierr.Wrap(apierr.StoreFailure, "decaying synapse %s: %v", t.id, err)
		}
	}
	return len(targets), nil
}

// PruneSynapses deletes every synapse of synType whose weight is ≤
// floor. Returns the count removed.
func (s *Store) PruneSynapses(ctx context.Context, synType core.SynapseType, floor float64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM synapses WHERE type = ? AND weight <= ?`, string(synType), floor)
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, "pruning synapses: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, "reading rows affected pruning synapses: %v", err)
	}
	return int(n), nil
}

func scanSynapses(rows *sql.Rows) ([]*core.Synapse, error) {
	var out []*core.Synapse
	for rows.Next() {
		syn, err := scanSynapse(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, "scanning synapse row: %v", err)
		}
		out = append(out, syn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "iterating synapse rows: %v", err)
	}
	return out, nil
}

func scanSynapse(row scanner) (*core.Synapse, error) {
	var (
		syn          core.Synapse
		metadataJSON sql.NullString
		lastFired    sql.NullString
		createdAt    string
	)
	if err := row.Scan(&syn.ID, &syn.SourceID, &syn.TargetID, &syn.Weight, &syn.Type,
		&metadataJSON, &syn.FireCount, &lastFired, &createdAt); err != nil {
		return nil, err
	}

	metadata, err := decodeMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	syn.Metadata = metadata

	if lastFired.Valid {
		t, err := parseTime(lastFired.String)
		if err != nil {
			return nil, err
		}
		syn.LastFired = &t
	}
	if syn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &syn, nil
}

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, apierr.Wrap(apierr.InvalidArgument, "encoding synapse metadata: %v", err)
	}
	return string(b), nil
}

func decodeMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "decoding synapse metadata: %v", err)
	}
	return m, nil
}
