package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Sync run outcomes recorded in sync_logs.
const (
	SyncStatusSuccess = "Success"
	SyncStatusFailed  = "Failed"
)

type SyncLog struct {
	ID           int64  `json:"id"`
	Resource     string `json:"resource"`
	SyncedAt     string `json:"syncedAt"`
	Added        int    `json:"added"`
	Updated      int    `json:"updated"`
	Deleted      int    `json:"deleted"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type DeltaToken struct {
	Resource     string `json:"resource"`
	DeltaLink    string `json:"deltaLink"`
	LastSyncedAt string `json:"lastSyncedAt"`
}

// GetDeltaLink returns the stored delta link for the resource, or "" when no
// sync has completed yet.
func (s *Store) GetDeltaLink(ctx context.Context, resource string) (string, error) {
	var link string
	err := s.queryRow(ctx, `SELECT delta_link FROM delta_tokens WHERE resource = ?`, resource).Scan(&link)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load delta token for %s: %w", resource, err)
	}
	return link, nil
}

// SaveDeltaLink records the delta link for the resource along with the sync
// timestamp.
func (s *Store) SaveDeltaLink(ctx context.Context, resource, deltaLink, syncedAt string) error {
	res, err := s.exec(ctx, `UPDATE delta_tokens SET delta_link = ?, last_synced_at = ? WHERE resource = ?`,
		deltaLink, syncedAt, resource)
	if err != nil {
		return fmt.Errorf("failed to update delta token for %s: %w", resource, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	_, err = s.exec(ctx, `INSERT INTO delta_tokens (resource, delta_link, last_synced_at) VALUES (?, ?, ?)`,
		resource, deltaLink, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to insert delta token for %s: %w", resource, err)
	}
	return nil
}

// DeltaTokens lists all stored tokens, newest first by resource name order.
func (s *Store) DeltaTokens(ctx context.Context) ([]DeltaToken, error) {
	rows, err := s.query(ctx, `SELECT resource, delta_link, last_synced_at FROM delta_tokens ORDER BY resource`)
	if err != nil {
		return nil, fmt.Errorf("failed to list delta tokens: %w", err)
	}
	defer rows.Close()

	var tokens []DeltaToken
	for rows.Next() {
		var t DeltaToken
		if err := rows.Scan(&t.Resource, &t.DeltaLink, &t.LastSyncedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// ClearDeltaLink drops the stored token so the next run walks the full feed.
func (s *Store) ClearDeltaLink(ctx context.Context, resource string) error {
	if _, err := s.exec(ctx, `DELETE FROM delta_tokens WHERE resource = ?`, resource); err != nil {
		return fmt.Errorf("failed to clear delta token for %s: %w", resource, err)
	}
	return nil
}

// AppendSyncLog records the outcome of a sync run. Failed runs keep their
// partial counts.
func (s *Store) AppendSyncLog(ctx context.Context, log *SyncLog) error {
	_, err := s.exec(ctx, `INSERT INTO sync_logs (resource, synced_at, added, updated, deleted, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.Resource, log.SyncedAt, log.Added, log.Updated, log.Deleted, log.Status, log.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to append sync log for %s: %w", log.Resource, err)
	}
	return nil
}

// SyncLogs returns the most recent runs, newest first.
func (s *Store) SyncLogs(ctx context.Context, limit int) ([]SyncLog, error) {
	q := `SELECT id, resource, synced_at, added, updated, deleted, status, error_message
		FROM sync_logs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		switch s.driver {
		case "sqlserver":
			q = `SELECT TOP (?) id, resource, synced_at, added, updated, deleted, status, error_message
				FROM sync_logs ORDER BY id DESC`
		default:
			q += ` LIMIT ?`
		}
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []SyncLog
	for rows.Next() {
		var l SyncLog
		if err := rows.Scan(&l.ID, &l.Resource, &l.SyncedAt, &l.Added, &l.Updated, &l.Deleted, &l.Status, &l.ErrorMessage); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
