package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/clipstream/crypto"
)

// ErrBindingNotFound is returned when no binding exists for a channel.
var ErrBindingNotFound = errors.New("db: channel binding not found")

// Binding links a channel to the endpoint that receives its clip messages.
type Binding struct {
	ChannelID            string
	Email                string
	ChannelURL           string
	NotificationEndpoint string
	CreatedAt            time.Time
}

// BindingStore persists bindings in channel_bindings. When an encryptor is
// set, endpoints are sealed at rest (encryption_version=1); rows written
// without one stay readable.
type BindingStore struct {
	DB  *sql.DB
	Enc crypto.Encryptor
}

func NewBindingStore(dbx *sql.DB, enc crypto.Encryptor) *BindingStore {
	return &BindingStore{DB: dbx, Enc: enc}
}

// PutBinding creates or replaces the binding for b.ChannelID. created_at is
// reset on every registration.
func (s *BindingStore) PutBinding(ctx context.Context, b Binding) error {
	endpoint := b.NotificationEndpoint
	encVersion := 0
	if s.Enc != nil {
		sealed, err := crypto.EncryptString(s.Enc, endpoint)
		if err != nil {
			return fmt.Errorf("encrypt endpoint: %w", err)
		}
		endpoint = sealed
		encVersion = 1
	}
	q := `INSERT INTO channel_bindings(channel_id, email, channel_url, notification_endpoint, encryption_version, created_at)
		  VALUES($1,$2,$3,$4,$5,NOW())
		  ON CONFLICT(channel_id) DO UPDATE SET
		    email=EXCLUDED.email,
		    channel_url=EXCLUDED.channel_url,
		    notification_endpoint=EXCLUDED.notification_endpoint,
		    encryption_version=EXCLUDED.encryption_version,
		    created_at=NOW()`
	_, err := s.DB.ExecContext(ctx, q, b.ChannelID, b.Email, b.ChannelURL, endpoint, encVersion)
	return err
}

// GetBinding returns the binding for channelID or ErrBindingNotFound.
func (s *BindingStore) GetBinding(ctx context.Context, channelID string) (*Binding, error) {
	var (
		b          Binding
		encVersion int
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT channel_id, email, channel_url, notification_endpoint, encryption_version, created_at
		 FROM channel_bindings WHERE channel_id = $1`, channelID).
		Scan(&b.ChannelID, &b.Email, &b.ChannelURL, &b.NotificationEndpoint, &encVersion, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBindingNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.open(&b, encVersion); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBindings returns all bindings, newest first. Endpoints are omitted
// unless withEndpoints is set.
func (s *BindingStore) ListBindings(ctx context.Context, withEndpoints bool) ([]Binding, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT channel_id, email, channel_url, notification_endpoint, encryption_version, created_at
		 FROM channel_bindings ORDER BY created_at DESC, channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		var (
			b          Binding
			encVersion int
		)
		if err := rows.Scan(&b.ChannelID, &b.Email, &b.ChannelURL, &b.NotificationEndpoint, &encVersion, &b.CreatedAt); err != nil {
			return nil, err
		}
		if withEndpoints {
			if err := s.open(&b, encVersion); err != nil {
				return nil, err
			}
		} else {
			b.NotificationEndpoint = ""
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BindingStore) CountBindings(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM channel_bindings`).Scan(&n)
	return n, err
}

func (s *BindingStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *BindingStore) open(b *Binding, encVersion int) error {
	if encVersion != 1 {
		return nil
	}
	if s.Enc == nil {
		return fmt.Errorf("endpoint for %s is encrypted but ENCRYPTION_KEY not configured", b.ChannelID)
	}
	plain, err := crypto.DecryptString(s.Enc, b.NotificationEndpoint)
	if err != nil {
		return fmt.Errorf("decrypt endpoint: %w", err)
	}
	b.NotificationEndpoint = plain
	return nil
}
