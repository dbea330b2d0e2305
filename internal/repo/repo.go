package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lubereport/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return r.Now().UTC().Format(time.RFC3339)
}

// Draft is a persisted draft snapshot.
type Draft struct {
	ID        string
	Sector    domain.Sector
	Mode      string
	ReportID  *int64
	State     []byte
	CreatedAt string
	UpdatedAt string
}

// SaveDraft inserts or replaces a draft snapshot.
func (r Repo) SaveDraft(ctx context.Context, d Draft) error {
	if d.ID == "" {
		return errors.New("draft id required")
	}
	now := r.now()
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO drafts(id,sector,mode,report_id,state_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET sector=excluded.sector, mode=excluded.mode, report_id=excluded.report_id,
  state_json=excluded.state_json, updated_at=excluded.updated_at`,
		d.ID, string(d.Sector), d.Mode, nullableInt64(d.ReportID), string(d.State), now, now)
	return err
}

// LoadDraft returns a draft by id.
func (r Repo) LoadDraft(ctx context.Context, id string) (Draft, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,sector,mode,report_id,state_json,created_at,updated_at FROM drafts WHERE id=?`, id)
	return scanDraft(row)
}

// LatestDraft returns the most recently updated draft.
func (r Repo) LatestDraft(ctx context.Context) (Draft, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,sector,mode,report_id,state_json,created_at,updated_at FROM drafts ORDER BY updated_at DESC, rowid DESC LIMIT 1`)
	return scanDraft(row)
}

// DeleteDraft removes a draft.
func (r Repo) DeleteDraft(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM drafts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDraft(row *sql.Row) (Draft, error) {
	var d Draft
	var sector, state string
	var reportID sql.NullInt64
	err := row.Scan(&d.ID, &sector, &d.Mode, &reportID, &state, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Sector = domain.Sector(sector)
	d.State = []byte(state)
	if reportID.Valid {
		v := reportID.Int64
		d.ReportID = &v
	}
	return d, nil
}

// Session keys.
const (
	KeyToken    = "token"
	KeySector   = "sector"
	KeyUsername = "username"
	KeyRole     = "role"
	KeyUserID   = "user_id"
	KeyDraft    = "draft"
)

// SetSession stores key/value pairs; an empty value deletes the key.
func (r Repo) SetSession(ctx context.Context, values map[string]string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := r.now()
	for k, v := range values {
		if v == "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM session WHERE key=?`, k); err != nil {
				return fmt.Errorf("clear %s: %w", k, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO session(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, k, v, now); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// GetSession returns every stored key.
func (r Repo) GetSession(ctx context.Context) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,value FROM session`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// EventFilter narrows ListEvents. Cursor returns events older than that id.
type EventFilter struct {
	Type       string
	EntityKind string
	EntityID   string
	Cursor     int64
	Limit      int
}

// ListEvents returns the newest events first.
func (r Repo) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		if strings.HasSuffix(f.Type, "*") {
			clauses = append(clauses, "type LIKE ?")
			args = append(args, strings.TrimSuffix(f.Type, "*")+"%")
		} else {
			clauses = append(clauses, "type=?")
			args = append(args, f.Type)
		}
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Actor, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// RecordExport stores a PDF export.
func (r Repo) RecordExport(ctx context.Context, e domain.Export) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO exports(report_id,sector,file_name,photos,created_at) VALUES (?,?,?,?,?)`,
		e.ReportID, string(e.Sector), e.FileName, e.Photos, r.now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListExports returns recent exports, newest first.
func (r Repo) ListExports(ctx context.Context, limit int) ([]domain.Export, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,report_id,sector,file_name,photos,created_at FROM exports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Export
	for rows.Next() {
		var e domain.Export
		var sector string
		if err := rows.Scan(&e.ID, &e.ReportID, &sector, &e.FileName, &e.Photos, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Sector = domain.Sector(sector)
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
