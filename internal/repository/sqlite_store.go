package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

// sqliteStore is the single-node Store. The connection pool is capped at one
// connection (see db.OpenSQLite), so every statement and transaction is
// serialised and the claim UPDATE is atomic without row locks.
// Timestamps are stored as Unix nanoseconds so that they compare as integers.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a Store backed by an open SQLite database.
func NewSQLiteStore(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

// ---- notice types ----

func (s *sqliteStore) InsertNoticeTypeIfAbsent(ctx context.Context, nt *domain.NoticeType) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notice_types (label, display, description, default_frequency, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (label) DO NOTHING`,
		nt.Label, nt.Display, nt.Description, string(nt.DefaultFrequency), nanos(nt.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert notice type: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert notice type: %w", err)
	}
	return n == 1, nil
}

func (s *sqliteStore) GetNoticeType(ctx context.Context, label string) (*domain.NoticeType, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT label, display, description, default_frequency, created_at
		FROM notice_types WHERE label = ?`, label)

	nt, err := scanSQLiteNoticeType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notice type %q: %w", label, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notice type: %w", err)
	}
	return nt, nil
}

func (s *sqliteStore) ListNoticeTypes(ctx context.Context) ([]*domain.NoticeType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, display, description, default_frequency, created_at
		FROM notice_types ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("list notice types: %w", err)
	}
	defer rows.Close()

	var types []*domain.NoticeType
	for rows.Next() {
		nt, err := scanSQLiteNoticeType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, nt)
	}
	return types, rows.Err()
}

// ---- settings ----

func (s *sqliteStore) GetSetting(ctx context.Context, user domain.UserID, label string, medium domain.Medium) (*domain.NoticeSetting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, label, medium, enabled, updated_at
		FROM notice_settings
		WHERE user_id = ? AND label = ? AND medium = ?`, string(user), label, string(medium))

	setting, err := scanSQLiteSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notice setting: %w", err)
	}
	return setting, nil
}

func (s *sqliteStore) InsertSettingIfAbsent(ctx context.Context, ns *domain.NoticeSetting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notice_settings (user_id, label, medium, enabled, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (user_id, label, medium) DO NOTHING`,
		string(ns.UserID), ns.Label, string(ns.Medium), ns.Enabled, nanos(ns.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert notice setting: %w", err)
	}
	return nil
}

func (s *sqliteStore) UpsertSetting(ctx context.Context, ns *domain.NoticeSetting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notice_settings (user_id, label, medium, enabled, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (user_id, label, medium)
		DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		string(ns.UserID), ns.Label, string(ns.Medium), ns.Enabled, nanos(ns.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert notice setting: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListSettings(ctx context.Context, user domain.UserID) ([]*domain.NoticeSetting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, label, medium, enabled, updated_at
		FROM notice_settings WHERE user_id = ?
		ORDER BY label, medium`, string(user))
	if err != nil {
		return nil, fmt.Errorf("list notice settings: %w", err)
	}
	defer rows.Close()

	var settings []*domain.NoticeSetting
	for rows.Next() {
		setting, err := scanSQLiteSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// ---- notices ----

func (s *sqliteStore) InsertNotice(ctx context.Context, n *domain.Notice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notices
			(id, recipient, label, short_text, message, sender, sent_at, unseen, archived)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, string(n.Recipient), n.Label, n.ShortText, n.Message,
		nullString(userIDPtr(n.Sender)), nanos(n.SentAt), n.Unseen, n.Archived,
	)
	if err != nil {
		return fmt.Errorf("insert notice: %w", err)
	}
	return nil
}

// ---- deferred dispatch queue ----

func (s *sqliteStore) InsertDispatch(ctx context.Context, d *domain.QueuedDispatch) error {
	recipients, err := json.Marshal(userIDStrings(d.Recipients))
	if err != nil {
		return fmt.Errorf("encode recipients: %w", err)
	}
	payload, err := json.Marshal(d.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_dispatches
			(recipients, label, context, on_site, sender, enqueued_at)
		VALUES (?,?,?,?,?,?)`,
		string(recipients), d.Label, string(payload), d.OnSite,
		nullString(userIDPtr(d.Sender)), nanos(d.EnqueuedAt),
	)
	if err != nil {
		return fmt.Errorf("insert queued dispatch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert queued dispatch: %w", err)
	}
	d.ID = id
	return nil
}

func (s *sqliteStore) ClaimDispatches(ctx context.Context, owner string, limit int, staleBefore time.Time) ([]*domain.QueuedDispatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE queued_dispatches
		SET claimed_by = ?, claimed_at = ?
		WHERE id IN (
			SELECT id FROM queued_dispatches
			WHERE claimed_at IS NULL OR claimed_at < ?
			ORDER BY enqueued_at, id
			LIMIT ?
		)
		RETURNING id, recipients, label, context, on_site, sender,
		          enqueued_at, claimed_by, claimed_at`,
		owner, nanos(time.Now().UTC()), nanos(staleBefore), limit)
	if err != nil {
		return nil, fmt.Errorf("claim queued dispatches: %w", err)
	}
	defer rows.Close()

	var claimed []*domain.QueuedDispatch
	for rows.Next() {
		d, err := scanSQLiteDispatch(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim queued dispatches: %w", err)
	}

	sortDispatches(claimed)
	return claimed, nil
}

func (s *sqliteStore) DeleteDispatch(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_dispatches WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete queued dispatch: %w", err)
	}
	return nil
}

func (s *sqliteStore) CountPendingDispatches(ctx context.Context, staleBefore time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queued_dispatches
		WHERE claimed_at IS NULL OR claimed_at < ?`, nanos(staleBefore)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued dispatches: %w", err)
	}
	return n, nil
}

// ---- observations ----

func (s *sqliteStore) UpsertObservation(ctx context.Context, o *domain.Observation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO observations (user_id, observed_kind, observed_id, signal, label, added_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (user_id, observed_kind, observed_id, signal)
		DO UPDATE SET label = excluded.label`,
		string(o.UserID), o.Observed.Kind, o.Observed.ID, o.Signal, o.Label, nanos(o.AddedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert observation: %w", err)
	}
	return nil
}

func (s *sqliteStore) DeleteObservation(ctx context.Context, observed domain.Ref, user domain.UserID, signal string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM observations
		WHERE user_id = ? AND observed_kind = ? AND observed_id = ? AND signal = ?`,
		string(user), observed.Kind, observed.ID, signal)
	if err != nil {
		return fmt.Errorf("delete observation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete observation: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ObservationExists(ctx context.Context, observed domain.Ref, user domain.UserID, signal string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM observations
			WHERE user_id = ? AND observed_kind = ? AND observed_id = ? AND signal = ?
		)`, string(user), observed.Kind, observed.ID, signal).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check observation: %w", err)
	}
	return exists, nil
}

func (s *sqliteStore) ListObservers(ctx context.Context, observed domain.Ref, signal string) ([]*domain.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, observed_kind, observed_id, signal, label, added_at
		FROM observations
		WHERE observed_kind = ? AND observed_id = ? AND signal = ?
		ORDER BY added_at DESC`, observed.Kind, observed.ID, signal)
	if err != nil {
		return nil, fmt.Errorf("list observers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Observation
	for rows.Next() {
		var (
			o     domain.Observation
			user  string
			added int64
		)
		if err := rows.Scan(&user, &o.Observed.Kind, &o.Observed.ID, &o.Signal, &o.Label, &added); err != nil {
			return nil, err
		}
		o.UserID = domain.UserID(user)
		o.AddedAt = fromNanos(added)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// ---- users ----

func (s *sqliteStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var (
		u      domain.User
		userID string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name FROM users WHERE id = ?`, string(id),
	).Scan(&userID, &u.Email, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.ID = domain.UserID(userID)
	return &u, nil
}

// ---- helpers ----

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteNoticeType(row sqlRow) (*domain.NoticeType, error) {
	var (
		nt      domain.NoticeType
		freq    string
		created int64
	)
	if err := row.Scan(&nt.Label, &nt.Display, &nt.Description, &freq, &created); err != nil {
		return nil, err
	}
	nt.DefaultFrequency = domain.Frequency(freq)
	nt.CreatedAt = fromNanos(created)
	return &nt, nil
}

func scanSQLiteSetting(row sqlRow) (*domain.NoticeSetting, error) {
	var (
		s            domain.NoticeSetting
		user, medium string
		updated      int64
	)
	if err := row.Scan(&user, &s.Label, &medium, &s.Enabled, &updated); err != nil {
		return nil, err
	}
	s.UserID = domain.UserID(user)
	s.Medium = domain.Medium(medium)
	s.UpdatedAt = fromNanos(updated)
	return &s, nil
}

func scanSQLiteDispatch(row sqlRow) (*domain.QueuedDispatch, error) {
	var (
		d                   domain.QueuedDispatch
		recipients, payload string
		sender, claimedBy   sql.NullString
		enqueued            int64
		claimedAt           sql.NullInt64
	)
	err := row.Scan(
		&d.ID, &recipients, &d.Label, &payload, &d.OnSite, &sender,
		&enqueued, &claimedBy, &claimedAt,
	)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(recipients), &ids); err != nil {
		d.DecodeErr = fmt.Errorf("decode recipients of dispatch %d: %w", d.ID, err)
	} else if err := json.Unmarshal([]byte(payload), &d.Context); err != nil {
		d.DecodeErr = fmt.Errorf("decode context of dispatch %d: %w", d.ID, err)
	}

	d.Recipients = toUserIDs(ids)
	d.EnqueuedAt = fromNanos(enqueued)
	if sender.Valid {
		d.Sender = toUserIDPtr(&sender.String)
	}
	if claimedBy.Valid {
		owner := claimedBy.String
		d.ClaimedBy = &owner
	}
	if claimedAt.Valid {
		at := fromNanos(claimedAt.Int64)
		d.ClaimedAt = &at
	}
	return &d, nil
}

func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
