package store

import (
	"context"
	"database/sql"

	"github.com/denizumutdereli/neuralrag/pkg/apierr"
	"github.com/denizumutdereli/neuralrag/pkg/core"
)

// Stats reports store-wide counters. AvgActivationDepth is intentionally
// absent here; it is computed per-query by the Retrieval Engine, not the
// Store.
func (s *Store) Stats(ctx context.Context) (*core.Stats, error) {
	var st core.Stats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM neurons`).Scan(&st.NeuronCount); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "counting neurons: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM synapses`).Scan(&st.SynapseCount); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "counting synapses: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_files`).Scan(&st.IndexedFileCount); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "counting indexed files: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_log`).Scan(&st.TotalQueries); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "counting query log: %v", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT language FROM neurons WHERE language != '' ORDER BY language ASC`)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "listing languages: %v", err)
	}
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			rows.Close()
			return nil, apierr.Wrap(apierr.StoreFailure, "scanning language row: %v", err)
		}
		st.Languages = append(st.Languages, lang)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "iterating language rows: %v", err)
	}

	var lastIndexed sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(last_indexed) FROM indexed_files`).Scan(&lastIndexed); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "reading last indexed: %v", err)
	}
	if lastIndexed.Valid {
		t, err := parseTime(lastIndexed.String)
		if err != nil {
			return nil, err
		}
		st.LastIndexed = &t
	}

	return &st, nil
}

// ClearAll deletes every row from the query log, synapses, neurons, and
// indexed-file manifest, in an order that respects the cascade
// dependencies.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "beginning clear_all: %v", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM query_log`,
		`DELETE FROM synapses`,
		`DELETE FROM neurons`,
		`DELETE FROM indexed_files`,
		`DELETE FROM _meta WHERE key = 'embedding_dim'`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apierr.Wrap(apierr.StoreFailure, "clear_all executing %q: %v", stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierr.Wrap(apierr.StoreFailure, "committing clear_all: %v", err)
	}
	s.notifyInvalidators()
	return nil
}
