package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// StartTimeStore shares broadcast start times between instances through the
// broadcast_start_times table.
type StartTimeStore struct {
	DB *sql.DB
}

func NewStartTimeStore(dbx *sql.DB) *StartTimeStore { return &StartTimeStore{DB: dbx} }

func (s *StartTimeStore) Get(ctx context.Context, broadcastID string) (time.Time, bool, error) {
	var t time.Time
	err := s.DB.QueryRowContext(ctx, `SELECT start_time FROM broadcast_start_times WHERE broadcast_id = $1`, broadcastID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}

// PutIfAbsent stores start unless a value already exists and returns the
// stored value.
func (s *StartTimeStore) PutIfAbsent(ctx context.Context, broadcastID string, start time.Time) (time.Time, error) {
	var t time.Time
	err := s.DB.QueryRowContext(ctx,
		`WITH ins AS (
			INSERT INTO broadcast_start_times(broadcast_id, start_time) VALUES($1,$2)
			ON CONFLICT(broadcast_id) DO NOTHING
			RETURNING start_time
		)
		SELECT start_time FROM ins
		UNION ALL
		SELECT start_time FROM broadcast_start_times WHERE broadcast_id = $1
		LIMIT 1`, broadcastID, start).Scan(&t)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
