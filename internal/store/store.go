// Package store is the narrow seam to the remote document store. Records
// are opaque field maps keyed by collection + id; everything the rest of
// the pipeline persists goes through here.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pranavjoshi100/safesteps-gps/internal/db"
)

// ErrUnavailable is returned when the backing database was never
// connected; callers treat it like any other transient write failure.
var ErrUnavailable = errors.New("record store unavailable")

// Collections written by the recording pipeline.
const (
	CollectionSegments = "trip_segments"
	CollectionReports  = "trip_reports"
	CollectionRoutes   = "routes"
)

type Record struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
}

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// PutRecord writes one record, replacing any existing record with the same
// id. Ids are generated client-side, so a retried write is idempotent.
func (s *Service) PutRecord(ctx context.Context, collection, id string, fields map[string]any) error {
	if s.db == nil {
		return ErrUnavailable
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO records (collection, id, fields)
		VALUES ($1,$2,$3)
		ON CONFLICT (collection, id) DO UPDATE SET fields=EXCLUDED.fields
	`, collection, id, payload)
	return err
}

// GetRecords returns every record in a collection whose fields contain the
// filter map. orderBy names a top-level field to sort on; empty means
// insertion order.
func (s *Service) GetRecords(ctx context.Context, collection string, filter map[string]any, orderBy string) ([]Record, error) {
	if s.db == nil {
		return nil, ErrUnavailable
	}
	if filter == nil {
		filter = map[string]any{}
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, fields
		FROM records
		WHERE collection=$1 AND fields @> $2
		ORDER BY CASE WHEN $3 = '' THEN NULL ELSE fields->>$3 END, created_at
	`, collection, filterJSON, orderBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec Record
			raw []byte
		)
		if err := rows.Scan(&rec.ID, &raw); err != nil {
			return nil, err
		}
		rec.Collection = collection
		if err := json.Unmarshal(raw, &rec.Fields); err != nil {
			// Malformed payloads degrade to an empty field map rather
			// than failing the whole batch.
			rec.Fields = map[string]any{}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
