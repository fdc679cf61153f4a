// Package postgres is the pgx-backed storage adapter. The unique
// (project_id, fingerprint) constraint plus INSERT ... ON CONFLICT DO
// NOTHING gives the atomic create-or-attach primitive the stack resolver
// relies on under concurrent batches.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/storage"
)

//go:embed schema.sql
var schema string

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return Connect(ctx, cfg.DSN)
	})
}

// Store persists events and stacks in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn and applies the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ready verifies connectivity.
func (s *Store) Ready(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "select 1").Scan(&one)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const eventColumns = `id, organization_id, project_id, type, date, message, source,
	reference_id, stack_id, session_id, user_identity, version,
	hidden, fixed, first_occurrence, session_end, value, tags, error, data, idx`

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (s *Store) SaveEvent(ctx context.Context, ev *model.Event) error {
	tags, errDetails, data, idx, err := marshalEventJSON(ev)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (id) DO UPDATE SET
			stack_id = EXCLUDED.stack_id,
			session_id = EXCLUDED.session_id,
			hidden = EXCLUDED.hidden,
			fixed = EXCLUDED.fixed,
			first_occurrence = EXCLUDED.first_occurrence,
			session_end = EXCLUDED.session_end,
			value = EXCLUDED.value,
			tags = EXCLUDED.tags,
			data = EXCLUDED.data,
			idx = EXCLUDED.idx`,
		ev.ID, ev.OrganizationID, ev.ProjectID, string(ev.Type), ev.Date.UTC(), ev.Message, ev.Source,
		ev.ReferenceID, ev.StackID, ev.SessionID, ev.UserIdentity, ev.Version,
		ev.Hidden, ev.Fixed, ev.FirstOccurrence, ev.HasSessionEnd, ev.Value, tags, errDetails, data, idx)
	if err != nil {
		return fmt.Errorf("save event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *Store) OpenSessionStart(ctx context.Context, projectID string, key storage.SessionKey) (*model.Event, error) {
	var row pgx.Row
	if key.SessionID != "" {
		row = s.pool.QueryRow(ctx, `
			SELECT `+eventColumns+` FROM events
			WHERE project_id = $1 AND session_id = $2 AND type = 'session' AND NOT session_end
			ORDER BY date DESC
			LIMIT 1`, projectID, key.SessionID)
	} else {
		row = s.pool.QueryRow(ctx, `
			SELECT `+eventColumns+` FROM events
			WHERE project_id = $1 AND user_identity = $2 AND type = 'session' AND NOT session_end
			ORDER BY date DESC
			LIMIT 1`, projectID, key.Identity)
	}
	return scanEvent(row)
}

const stackColumns = `id, organization_id, project_id, fingerprint, type, title,
	hidden, fixed, fixed_in_version, fixed_at, first_seen, last_seen, total_occurrences, tags`

func (s *Store) GetStack(ctx context.Context, id string) (*model.Stack, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+stackColumns+` FROM stacks WHERE id = $1`, id)
	return scanStack(row)
}

func (s *Store) GetStackByFingerprint(ctx context.Context, projectID, fingerprint string) (*model.Stack, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+stackColumns+` FROM stacks
		WHERE project_id = $1 AND fingerprint = $2`, projectID, fingerprint)
	return scanStack(row)
}

func (s *Store) SaveStack(ctx context.Context, st *model.Stack) error {
	tags, err := json.Marshal(st.Tags)
	if err != nil {
		return fmt.Errorf("marshal stack tags: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO stacks (`+stackColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			hidden = EXCLUDED.hidden,
			fixed = EXCLUDED.fixed,
			fixed_in_version = EXCLUDED.fixed_in_version,
			fixed_at = EXCLUDED.fixed_at,
			last_seen = EXCLUDED.last_seen,
			total_occurrences = EXCLUDED.total_occurrences,
			tags = EXCLUDED.tags`,
		st.ID, st.OrganizationID, st.ProjectID, st.Fingerprint, string(st.Type), st.Title,
		st.Hidden, st.Fixed, st.FixedInVersion, nullableTime(st.FixedAt),
		st.FirstSeen.UTC(), st.LastSeen.UTC(), st.TotalOccurrences, tags)
	if err != nil {
		return fmt.Errorf("save stack %s: %w", st.ID, err)
	}
	return nil
}

func (s *Store) CreateStackIfAbsent(ctx context.Context, st *model.Stack) (*model.Stack, bool, error) {
	tags, err := json.Marshal(st.Tags)
	if err != nil {
		return nil, false, fmt.Errorf("marshal stack tags: %w", err)
	}
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO stacks (`+stackColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (project_id, fingerprint) DO NOTHING`,
		st.ID, st.OrganizationID, st.ProjectID, st.Fingerprint, string(st.Type), st.Title,
		st.Hidden, st.Fixed, st.FixedInVersion, nullableTime(st.FixedAt),
		st.FirstSeen.UTC(), st.LastSeen.UTC(), st.TotalOccurrences, tags)
	if err != nil {
		return nil, false, fmt.Errorf("create stack: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return st.Clone(), true, nil
	}
	// Lost the race: re-read the winner.
	existing, err := s.GetStackByFingerprint(ctx, st.ProjectID, st.Fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("create stack re-read: %w", err)
	}
	return existing, false, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func marshalEventJSON(ev *model.Event) (tags, errDetails, data, idx []byte, err error) {
	if tags, err = json.Marshal(ev.Tags); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	if ev.Error != nil {
		if errDetails, err = json.Marshal(ev.Error); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal error details: %w", err)
		}
	}
	if ev.Data != nil {
		if data, err = json.Marshal(ev.Data); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal data: %w", err)
		}
	}
	if ev.Idx != nil {
		if idx, err = json.Marshal(ev.Idx); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal idx: %w", err)
		}
	}
	return tags, errDetails, data, idx, nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		ev      model.Event
		typ     string
		tags    []byte
		errDet  []byte
		data    []byte
		idxData []byte
	)
	err := row.Scan(&ev.ID, &ev.OrganizationID, &ev.ProjectID, &typ, &ev.Date, &ev.Message, &ev.Source,
		&ev.ReferenceID, &ev.StackID, &ev.SessionID, &ev.UserIdentity, &ev.Version,
		&ev.Hidden, &ev.Fixed, &ev.FirstOccurrence, &ev.HasSessionEnd, &ev.Value, &tags, &errDet, &data, &idxData)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.Type = model.EventType(typ)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &ev.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(errDet) > 0 {
		ev.Error = &model.ErrorDetails{}
		if err := json.Unmarshal(errDet, ev.Error); err != nil {
			return nil, fmt.Errorf("unmarshal error details: %w", err)
		}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ev.Data); err != nil {
			return nil, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	if len(idxData) > 0 {
		if err := json.Unmarshal(idxData, &ev.Idx); err != nil {
			return nil, fmt.Errorf("unmarshal idx: %w", err)
		}
	}
	return &ev, nil
}

func scanStack(row pgx.Row) (*model.Stack, error) {
	var (
		st      model.Stack
		typ     string
		fixedAt *time.Time
		tags    []byte
	)
	err := row.Scan(&st.ID, &st.OrganizationID, &st.ProjectID, &st.Fingerprint, &typ, &st.Title,
		&st.Hidden, &st.Fixed, &st.FixedInVersion, &fixedAt, &st.FirstSeen, &st.LastSeen,
		&st.TotalOccurrences, &tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan stack: %w", err)
	}
	st.Type = model.EventType(typ)
	if fixedAt != nil {
		st.FixedAt = *fixedAt
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &st.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal stack tags: %w", err)
		}
	}
	return &st, nil
}
