package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/denizumutdereli/neuralrag/pkg/apierr"
	"github.com/denizumutdereli/neuralrag/pkg/core"
)

// UpsertIndexedFile inserts or replaces the manifest row for path.
func (s *Store) UpsertIndexedFile(ctx context.Context, f core.IndexedFile) error {
	if f.LastIndexed.IsZero() {
		f.LastIndexed = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO indexed_files(path, language, neuron_count, content_hash, last_indexed)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	language = excluded.language,
	neuron_count = excluded.neuron_count,
	content_hash = excluded.content_hash,
	last_indexed = excluded.last_indexed`,
		f.Path, f.Language, f.NeuronCount, f.ContentHash, formatTime(f.LastIndexed))
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "upserting indexed file %s: %v", f.Path, err)
	}
	return nil
}

// GetIndexedFile fetches the manifest row for path.
func (s *Store) GetIndexedFile(ctx context.Context, path string) (*core.IndexedFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT path, language, neuron_count, content_hash, last_indexed FROM indexed_files WHERE path = ?`, path)
	f, err := scanIndexedFile(row)
	if err == sql.ErrNoRows {
		return nil, apierr.Wrap(apierr.NotFound, "indexed file %s", path)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "fetching indexed file %s: %v", path, err)
	}
	return f, nil
}

// DeleteIndexedFile removes the manifest row for path. It does not
// itself delete neurons; callers pair it with DeleteNeuronsByFile.
func (s *Store) DeleteIndexedFile(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_files WHERE path = ?`, path)
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "deleting indexed file %s: %v", path, err)
	}
	return nil
}

// ListIndexedFiles returns every manifest row, ordered by path.
func (s *Store) ListIndexedFiles(ctx context.Context) ([]*core.IndexedFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, language, neuron_count, content_hash, last_indexed FROM indexed_files ORDER BY path ASC`)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "listing indexed files: %v", err)
	}
	defer rows.Close()

	var out []*core.IndexedFile
	for rows.Next() {
		f, err := scanIndexedFile(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, "scanning indexed file row: %v", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "iterating indexed file rows: %v", err)
	}
	return out, nil
}

func scanIndexedFile(row scanner) (*core.IndexedFile, error) {
	var f core.IndexedFile
	var lastIndexed string
	if err := row.Scan(&f.Path, &f.Language, &f.NeuronCount, &f.ContentHash, &lastIndexed); err != nil {
		return nil, err
	}
	t, err := parseTime(lastIndexed)
	if err != nil {
		return nil, err
	}
	f.LastIndexed = t
	return &f, nil
}
