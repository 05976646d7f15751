package repository

import (
	"context"
	"time"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

// NoticeTypeRepository persists notice type definitions.
type NoticeTypeRepository interface {
	// InsertNoticeTypeIfAbsent inserts nt unless a type with the same label
	// exists. It reports whether a row was created; existing rows are untouched.
	InsertNoticeTypeIfAbsent(ctx context.Context, nt *domain.NoticeType) (bool, error)
	GetNoticeType(ctx context.Context, label string) (*domain.NoticeType, error)
	ListNoticeTypes(ctx context.Context) ([]*domain.NoticeType, error)
}

// NoticeSettingRepository persists per-user delivery preferences.
type NoticeSettingRepository interface {
	GetSetting(ctx context.Context, user domain.UserID, label string, medium domain.Medium) (*domain.NoticeSetting, error)
	// InsertSettingIfAbsent stores a lazily derived default. A row written
	// concurrently by UpsertSetting wins.
	InsertSettingIfAbsent(ctx context.Context, s *domain.NoticeSetting) error
	UpsertSetting(ctx context.Context, s *domain.NoticeSetting) error
	ListSettings(ctx context.Context, user domain.UserID) ([]*domain.NoticeSetting, error)
}

// NoticeRepository persists on-site notice records.
type NoticeRepository interface {
	InsertNotice(ctx context.Context, n *domain.Notice) error
}

// DispatchQueueRepository is the deferred dispatch table.
//
// ClaimDispatches must be atomic across processes: a row returned to one
// caller is never returned to another until its claim is older than
// staleBefore. Rows come back oldest first (enqueued_at, then id). A row
// whose stored payload cannot be decoded is returned with DecodeErr set
// rather than failing the claim.
type DispatchQueueRepository interface {
	InsertDispatch(ctx context.Context, d *domain.QueuedDispatch) error
	ClaimDispatches(ctx context.Context, owner string, limit int, staleBefore time.Time) ([]*domain.QueuedDispatch, error)
	DeleteDispatch(ctx context.Context, id int64) error
	CountPendingDispatches(ctx context.Context, staleBefore time.Time) (int, error)
}

// ObservationRepository persists users' interest in application objects.
type ObservationRepository interface {
	UpsertObservation(ctx context.Context, o *domain.Observation) error
	DeleteObservation(ctx context.Context, observed domain.Ref, user domain.UserID, signal string) error
	ObservationExists(ctx context.Context, observed domain.Ref, user domain.UserID, signal string) (bool, error)
	ListObservers(ctx context.Context, observed domain.Ref, signal string) ([]*domain.Observation, error)
}

// UserRepository resolves recipients owned by the host application.
type UserRepository interface {
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// Store bundles every persistence operation the service needs.
// The pgx implementation is in pg_store.go, the SQLite one in sqlite_store.go.
// Tests use a hand-written in-memory store (mock_store.go).
type Store interface {
	NoticeTypeRepository
	NoticeSettingRepository
	NoticeRepository
	DispatchQueueRepository
	ObservationRepository
	UserRepository
}
