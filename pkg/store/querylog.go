package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/denizumutdereli/neuralrag/pkg/apierr"
	"github.com/denizumutdereli/neuralrag/pkg/core"
)

// LogQuery records one retrieval call. usedIDs is normally nil at
// creation time; it is filled in later via ReportUsed.
func (s *Store) LogQuery(ctx context.Context, query string, activatedIDs []core.NeuronID, usedIDs []core.NeuronID) (string, error) {
	id := core.NewQueryID()

	activatedJSON, err := json.Marshal(neuronIDStrings(activatedIDs))
	if err != nil {
		return "", apierr.Wrap(apierr.InvalidArgument, "encoding activated ids: %v", err)
	}

	var usedJSON any
	if usedIDs != nil {
		b, err := json.Marshal(neuronIDStrings(usedIDs))
		if err != nil {
			return "", apierr.Wrap(apierr.InvalidArgument, "encoding used ids: %v", err)
		}
		usedJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO query_log(id, query, activated_neuron_ids, used_neuron_ids, timestamp)
VALUES (?, ?, ?, ?, ?)`,
		id, query, string(activatedJSON), usedJSON, formatTime(time.Now().UTC()))
	if err != nil {
		return "", apierr.Wrap(apierr.StoreFailure, "logging query: %v", err)
	}
	return id, nil
}

// ReportUsed records which of a query's activated neurons were actually
// used by the caller.
func (s *Store) ReportUsed(ctx context.Context, queryID string, usedIDs []core.NeuronID) error {
	usedJSON, err := json.Marshal(neuronIDStrings(usedIDs))
	if err != nil {
		return apierr.Wrap(apierr.InvalidArgument, "encoding used ids: %v", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE query_log SET used_neuron_ids = ? WHERE id = ?`, string(usedJSON), queryID)
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "reporting used neurons for query %s: %v", queryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "reading rows affected reporting used neurons: %v", err)
	}
	if n == 0 {
		return apierr.Wrap(apierr.NotFound, "query log entry %s", queryID)
	}
	return nil
}

// GetQueryLogEntry fetches one query log row by id.
func (s *Store) GetQueryLogEntry(ctx context.Context, id string) (*core.QueryLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, query, activated_neuron_ids, used_neuron_ids, timestamp FROM query_log WHERE id = ?`, id)
	e, err := scanQueryLogEntry(row)
	if err == sql.ErrNoRows {
		return nil, apierr.Wrap(apierr.NotFound, "query log entry %s", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "fetching query log entry %s: %v", id, err)
	}
	return e, nil
}

func scanQueryLogEntry(row scanner) (*core.QueryLogEntry, error) {
	var (
		e             core.QueryLogEntry
		activatedJSON string
		usedJSON      sql.NullString
		timestamp     string
	)
	if err := row.Scan(&e.ID, &e.Query, &activatedJSON, &usedJSON, &timestamp); err != nil {
		return nil, err
	}

	var activatedStrs []string
	if err := json.Unmarshal([]byte(activatedJSON), &activatedStrs); err != nil {
		return nil, err
	}
	e.ActivatedNeuronIDs = stringsToNeuronIDs(activatedStrs)

	if usedJSON.Valid {
		var usedStrs []string
		if err := json.Unmarshal([]byte(usedJSON.String), &usedStrs); err != nil {
			return nil, err
		}
		e.UsedNeuronIDs = stringsToNeuronIDs(usedStrs)
	}

	t, err := parseTime(timestamp)
	if err != nil {
		return nil, err
	}
	e.Timestamp = t
	return &e, nil
}

func neuronIDStrings(ids []core.NeuronID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func stringsToNeuronIDs(ss []string) []core.NeuronID {
	out := make([]core.NeuronID, len(ss))
	for i, s := range ss {
		out[i] = core.NeuronID(s)
	}
	return out
}
