package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a Store backed by PostgreSQL.
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// ---- notice types ----

func (r *pgStore) InsertNoticeTypeIfAbsent(ctx context.Context, nt *domain.NoticeType) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notice_types (label, display, description, default_frequency, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (label) DO NOTHING`,
		nt.Label, nt.Display, nt.Description, nt.DefaultFrequency, nt.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert notice type: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgStore) GetNoticeType(ctx context.Context, label string) (*domain.NoticeType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT label, display, description, default_frequency, created_at
		FROM notice_types WHERE label = $1`, label)

	var nt domain.NoticeType
	err := row.Scan(&nt.Label, &nt.Display, &nt.Description, &nt.DefaultFrequency, &nt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notice type %q: %w", label, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notice type: %w", err)
	}
	return &nt, nil
}

func (r *pgStore) ListNoticeTypes(ctx context.Context) ([]*domain.NoticeType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT label, display, description, default_frequency, created_at
		FROM notice_types ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("list notice types: %w", err)
	}
	defer rows.Close()

	var types []*domain.NoticeType
	for rows.Next() {
		var nt domain.NoticeType
		if err := rows.Scan(&nt.Label, &nt.Display, &nt.Description, &nt.DefaultFrequency, &nt.CreatedAt); err != nil {
			return nil, err
		}
		types = append(types, &nt)
	}
	return types, rows.Err()
}

// ---- settings ----

func (r *pgStore) GetSetting(ctx context.Context, user domain.UserID, label string, medium domain.Medium) (*domain.NoticeSetting, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, label, medium, enabled, updated_at
		FROM notice_settings
		WHERE user_id = $1 AND label = $2 AND medium = $3`, user, label, medium)

	s, err := scanSetting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (r *pgStore) InsertSettingIfAbsent(ctx context.Context, s *domain.NoticeSetting) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notice_settings (user_id, label, medium, enabled, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, label, medium) DO NOTHING`,
		s.UserID, s.Label, s.Medium, s.Enabled, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notice setting: %w", err)
	}
	return nil
}

func (r *pgStore) UpsertSetting(ctx context.Context, s *domain.NoticeSetting) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notice_settings (user_id, label, medium, enabled, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, label, medium)
		DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		s.UserID, s.Label, s.Medium, s.Enabled, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert notice setting: %w", err)
	}
	return nil
}

func (r *pgStore) ListSettings(ctx context.Context, user domain.UserID) ([]*domain.NoticeSetting, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, label, medium, enabled, updated_at
		FROM notice_settings WHERE user_id = $1
		ORDER BY label, medium`, user)
	if err != nil {
		return nil, fmt.Errorf("list notice settings: %w", err)
	}
	defer rows.Close()

	var settings []*domain.NoticeSetting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// ---- notices ----

func (r *pgStore) InsertNotice(ctx context.Context, n *domain.Notice) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notices
			(id, recipient, label, short_text, message, sender, sent_at, unseen, archived)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		n.ID, n.Recipient, n.Label, n.ShortText, n.Message,
		userIDPtr(n.Sender), n.SentAt, n.Unseen, n.Archived,
	)
	if err != nil {
		return fmt.Errorf("insert notice: %w", err)
	}
	return nil
}

// ---- deferred dispatch queue ----

func (r *pgStore) InsertDispatch(ctx context.Context, d *domain.QueuedDispatch) error {
	payload, err := json.Marshal(d.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO queued_dispatches
			(recipients, label, context, on_site, sender, enqueued_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		userIDStrings(d.Recipients), d.Label, payload, d.OnSite, userIDPtr(d.Sender), d.EnqueuedAt,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("insert queued dispatch: %w", err)
	}
	return nil
}

// ClaimDispatches marks up to limit pending rows as owned by owner in a
// single statement. SKIP LOCKED keeps concurrent drains from blocking on, or
// double-claiming, each other's rows.
func (r *pgStore) ClaimDispatches(ctx context.Context, owner string, limit int, staleBefore time.Time) ([]*domain.QueuedDispatch, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE queued_dispatches
		SET claimed_by = $1, claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM queued_dispatches
			WHERE claimed_at IS NULL OR claimed_at < $2
			ORDER BY enqueued_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, recipients, label, context, on_site, sender,
		          enqueued_at, claimed_by, claimed_at`,
		owner, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queued dispatches: %w", err)
	}
	defer rows.Close()

	var claimed []*domain.QueuedDispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim queued dispatches: %w", err)
	}

	// RETURNING does not preserve the subquery's ORDER BY.
	sortDispatches(claimed)
	return claimed, nil
}

func (r *pgStore) DeleteDispatch(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM queued_dispatches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete queued dispatch: %w", err)
	}
	return nil
}

func (r *pgStore) CountPendingDispatches(ctx context.Context, staleBefore time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM queued_dispatches
		WHERE claimed_at IS NULL OR claimed_at < $1`, staleBefore).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued dispatches: %w", err)
	}
	return n, nil
}

// ---- observations ----

func (r *pgStore) UpsertObservation(ctx context.Context, o *domain.Observation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO observations (user_id, observed_kind, observed_id, signal, label, added_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id, observed_kind, observed_id, signal)
		DO UPDATE SET label = EXCLUDED.label`,
		o.UserID, o.Observed.Kind, o.Observed.ID, o.Signal, o.Label, o.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert observation: %w", err)
	}
	return nil
}

func (r *pgStore) DeleteObservation(ctx context.Context, observed domain.Ref, user domain.UserID, signal string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM observations
		WHERE user_id = $1 AND observed_kind = $2 AND observed_id = $3 AND signal = $4`,
		user, observed.Kind, observed.ID, signal)
	if err != nil {
		return fmt.Errorf("delete observation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgStore) ObservationExists(ctx context.Context, observed domain.Ref, user domain.UserID, signal string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM observations
			WHERE user_id = $1 AND observed_kind = $2 AND observed_id = $3 AND signal = $4
		)`, user, observed.Kind, observed.ID, signal).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check observation: %w", err)
	}
	return exists, nil
}

func (r *pgStore) ListObservers(ctx context.Context, observed domain.Ref, signal string) ([]*domain.Observation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, observed_kind, observed_id, signal, label, added_at
		FROM observations
		WHERE observed_kind = $1 AND observed_id = $2 AND signal = $3
		ORDER BY added_at DESC`, observed.Kind, observed.ID, signal)
	if err != nil {
		return nil, fmt.Errorf("list observers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Observation
	for rows.Next() {
		var (
			o    domain.Observation
			user string
		)
		if err := rows.Scan(&user, &o.Observed.Kind, &o.Observed.ID, &o.Signal, &o.Label, &o.AddedAt); err != nil {
			return nil, err
		}
		o.UserID = domain.UserID(user)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// ---- users ----

func (r *pgStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var (
		u      domain.User
		userID string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name FROM users WHERE id = $1`, id,
	).Scan(&userID, &u.Email, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.ID = domain.UserID(userID)
	return &u, nil
}

// ---- helpers ----

func scanSetting(row pgx.Row) (*domain.NoticeSetting, error) {
	var (
		s            domain.NoticeSetting
		user, medium string
	)
	if err := row.Scan(&user, &s.Label, &medium, &s.Enabled, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.UserID = domain.UserID(user)
	s.Medium = domain.Medium(medium)
	return &s, nil
}

func scanDispatch(row pgx.Row) (*domain.QueuedDispatch, error) {
	var (
		d          domain.QueuedDispatch
		recipients []string
		payload    []byte
		sender     *string
	)
	err := row.Scan(
		&d.ID, &recipients, &d.Label, &payload, &d.OnSite, &sender,
		&d.EnqueuedAt, &d.ClaimedBy, &d.ClaimedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Recipients = toUserIDs(recipients)
	if err := json.Unmarshal(payload, &d.Context); err != nil {
		d.DecodeErr = fmt.Errorf("decode context of dispatch %d: %w", d.ID, err)
	}
	d.Sender = toUserIDPtr(sender)
	return &d, nil
}

func sortDispatches(ds []*domain.QueuedDispatch) {
	slices.SortFunc(ds, func(a, b *domain.QueuedDispatch) int {
		if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func userIDStrings(ids []domain.UserID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toUserIDs(ids []string) []domain.UserID {
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out
}

func userIDPtr(id *domain.UserID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func toUserIDPtr(s *string) *domain.UserID {
	if s == nil {
		return nil
	}
	id := domain.UserID(*s)
	return &id
}
