package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/denizumutdereli/neuralrag/pkg/apierr"
	"github.com/denizumutdereli/neuralrag/pkg/core"
)

// CreateNeuron inserts a single neuron, assigning its id and timestamps.
func (s *Store) CreateNeuron(ctx context.Context, input core.NeuronCreateInput) (*core.Neuron, error) {
	n, err := neuronFromInput(input)
	if err != nil {
		return nil, err
	}
	if err := s.insertNeuron(ctx, s.db, n); err != nil {
		return nil, err
	}
	s.notifyInvalidators()
	return n, nil
}

// CreateNeuronsBatch inserts many neurons atomically, returning their
// assigned ids in input order.
func (s *Store) CreateNeuronsBatch(ctx context.Context, inputs []core.NeuronCreateInput) ([]core.NeuronID, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "beginning batch neuron insert: %v", err)
	}
	defer tx.Rollback()

	ids := make([]core.NeuronID, 0, len(inputs))
	for _, input := range inputs {
		n, err := neuronFromInput(input)
		if err != nil {
			return nil, err
		}
		if err := s.insertNeuron(ctx, tx, n); err != nil {
			return nil, err
		}
		ids = append(ids, n.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "committing batch neuron insert: %v", err)
	}
	s.notifyInvalidators()
	return ids, nil
}

func neuronFromInput(input core.NeuronCreateInput) (*core.Neuron, error) {
	if err := core.ValidateLineSpan(input.StartLine, input.EndLine); err != nil {
		return nil, err
	}
	if err := core.ValidateNeuronType(input.Type); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &core.Neuron{
		ID:        core.NewNeuronID(),
		Content:   input.Content,
		Summary:   input.Summary,
		Embedding: input.Embedding,
		FilePath:  input.FilePath,
		StartLine: input.StartLine,
		EndLine:   input.EndLine,
		Type:      input.Type,
		Name:      input.Name,
		Language:  input.Language,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkOrSetEmbeddingDimension enforces spec's store-wide embedding
// dimension invariant: the first non-empty embedding ever written fixes
// the dimension in _meta; every later non-empty embedding must match it.
func checkOrSetEmbeddingDimension(ctx context.Context, ex execer, dim int) error {
	stored, ok, err := embeddingDimension(ctx, ex)
	if err != nil {
		return err
	}
	if !ok {
		return setEmbeddingDimension(ctx, ex, dim)
	}
	if stored != dim {
		return apierr.Wrap(apierr.InvalidArgument, "embedding dimension %d does not match store-wide dimension %d", dim, stored)
	}
	return nil
}

func embeddingDimension(ctx context.Context, ex execer) (int, bool, error) {
	var raw string
	err := ex.QueryRowContext(ctx, "SELECT value FROM _meta WHERE key = 'embedding_dim'").Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apierr.Wrap(apierr.StoreFailure, "reading embedding_dim: %v", err)
	}
	dim, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, apierr.Wrap(apierr.StoreFailure, "parsing embedding_dim %q: %v", raw, err)
	}
	return dim, true, nil
}

func setEmbeddingDimension(ctx context.Context, ex execer, dim int) error {
	_, err := ex.ExecContext(ctx, `
INSERT INTO _meta(key, value) VALUES ('embedding_dim', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(dim))
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "writing embedding_dim: %v", err)
	}
	return nil
}

func (s *Store) insertNeuron(ctx context.Context, ex execer, n *core.Neuron) error {
	if len(n.Embedding) > 0 {
		if err := checkOrSetEmbeddingDimension(ctx, ex, len(n.Embedding)); err != nil {
			return err
		}
	}
	_, err := ex.ExecContext(ctx, `
INSERT INTO neurons(id, content, summary, embedding, file_path, start_line, end_line,
	type, name, language, activation_count, last_activated, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(n.ID), n.Content, n.Summary, core.EncodeEmbedding(n.Embedding),
		n.FilePath, n.StartLine, n.EndLine, string(n.Type), n.Name, n.Language,
		n.ActivationCount, nullableTime(n.LastActivated), formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "inserting neuron %s: %v", n.ID, err)
	}
	return nil
}

const neuronColumns = `id, content, summary, embedding, file_path, start_line, end_line,
	type, name, language, activation_count, last_activated, created_at, updated_at`

// GetNeuron fetches a single neuron by id.
func (s *Store) GetNeuron(ctx context.Context, id core.NeuronID) (*core.Neuron, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+neuronColumns+` FROM neurons WHERE id = ?`, string(id))
	n, err := scanNeuron(row)
	if err == sql.ErrNoRows {
		return nil, apierr.Wrap(apierr.NotFound, "neuron %s", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "fetching neuron %s: %v", id, err)
	}
	return n, nil
}

// GetNeuronsByFile returns all neurons for a file path, ordered by
// start_line ascending.
func (s *Store) GetNeuronsByFile(ctx context.Context, path string) ([]*core.Neuron, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+neuronColumns+` FROM neurons WHERE file_path = ? ORDER BY start_line ASC`, path)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "fetching neurons for file %s: %v", path, err)
	}
	defer rows.Close()
	return scanNeurons(rows)
}

// GetAllNeurons returns every neuron, ordered by file_path then
// start_line ascending.
func (s *Store) GetAllNeurons(ctx context.Context) ([]*core.Neuron, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+neuronColumns+` FROM neurons ORDER BY file_path ASC, start_line ASC`)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "fetching all neurons: %v", err)
	}
	defer rows.Close()
	return scanNeurons(rows)
}

// DeleteNeuronsByFile removes all neurons for a file path, cascading to
// their synapses, and returns the count removed.
func (s *Store) DeleteNeuronsByFile(ctx context.Context, path string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM neurons WHERE file_path = ?`, path)
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, "deleting neurons for file %s: %v", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, "reading rows affected for file %s: %v", path, err)
	}
	s.notifyInvalidators()
	return int(n), nil
}

// IncrementActivation atomically bumps activation_count and refreshes
// last_activated/updated_at to now.
func (s *Store) IncrementActivation(ctx context.Context, id core.NeuronID) error {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx, `
UPDATE neurons
SET activation_count = activation_count + 1, last_activated = ?, updated_at = ?
WHERE id = ?`, now, now, string(id))
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "incrementing activation for %s: %v", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "reading rows affected for %s: %v", id, err)
	}
	if n == 0 {
		return apierr.Wrap(apierr.NotFound, "neuron %s", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNeuron(row scanner) (*core.Neuron, error) {
	var (
		n             core.Neuron
		embeddingBlob []byte
		lastActivated sql.NullString
		createdAt     string
		updatedAt     string
	)
	if err := row.Scan(&n.ID, &n.Content, &n.Summary, &embeddingBlob, &n.FilePath,
		&n.StartLine, &n.EndLine, &n.Type, &n.Name, &n.Language,
		&n.ActivationCount, &lastActivated, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	embedding, err := core.DecodeEmbedding(embeddingBlob)
	if err != nil {
		return nil, err
	}
	n.Embedding = embedding

	if lastActivated.Valid {
		t, err := parseTime(lastActivated.String)
		if err != nil {
			return nil, err
		}
		n.LastActivated = &t
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNeurons(rows *sql.Rows) ([]*core.Neuron, error) {
	var out []*core.Neuron
	for rows.Next() {
		n, err := scanNeuron(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, "scanning neuron row: %v", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "iterating neuron rows: %v", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, apierr.Wrap(apierr.StoreFailure, "parsing timestamp %q: %v", s, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
