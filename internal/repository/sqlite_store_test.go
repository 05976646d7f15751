package repository_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notice-dispatch/internal/db"
	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/repository"
)

func newSQLiteStore(t *testing.T) (repository.Store, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	sqlDB, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "notices.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.MigrateSQLite(sqlDB))

	store := repository.NewSQLiteStore(sqlDB)
	_, err = store.InsertNoticeTypeIfAbsent(ctx, &domain.NoticeType{
		Label: "invite", Display: "Invite", Description: "an invitation",
		DefaultFrequency: domain.FrequencyImmediate, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return store, sqlDB
}

func TestSQLiteStore_NoticeTypes(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	created, err := store.InsertNoticeTypeIfAbsent(ctx, &domain.NoticeType{
		Label: "invite", Display: "Other", DefaultFrequency: domain.FrequencyNever,
	})
	require.NoError(t, err)
	assert.False(t, created)

	nt, err := store.GetNoticeType(ctx, "invite")
	require.NoError(t, err)
	assert.Equal(t, "Invite", nt.Display)
	assert.Equal(t, domain.FrequencyImmediate, nt.DefaultFrequency)

	_, err = store.GetNoticeType(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	created, err = store.InsertNoticeTypeIfAbsent(ctx, &domain.NoticeType{
		Label: "alpha", Display: "Alpha", DefaultFrequency: domain.FrequencySiteOnly,
	})
	require.NoError(t, err)
	assert.True(t, created)

	types, err := store.ListNoticeTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "alpha", types[0].Label)
	assert.Equal(t, "invite", types[1].Label)
}

func TestSQLiteStore_Settings(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	_, err := store.GetSetting(ctx, "u1", "invite", domain.MediumEmail)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.InsertSettingIfAbsent(ctx, &domain.NoticeSetting{
		UserID: "u1", Label: "invite", Medium: domain.MediumEmail, Enabled: true,
	}))
	// A second lazy insert never overwrites.
	require.NoError(t, store.InsertSettingIfAbsent(ctx, &domain.NoticeSetting{
		UserID: "u1", Label: "invite", Medium: domain.MediumEmail, Enabled: false,
	}))

	s, err := store.GetSetting(ctx, "u1", "invite", domain.MediumEmail)
	require.NoError(t, err)
	assert.True(t, s.Enabled)

	require.NoError(t, store.UpsertSetting(ctx, &domain.NoticeSetting{
		UserID: "u1", Label: "invite", Medium: domain.MediumEmail, Enabled: false,
	}))
	require.NoError(t, store.UpsertSetting(ctx, &domain.NoticeSetting{
		UserID: "u1", Label: "invite", Medium: domain.MediumSite, Enabled: true,
	}))

	settings, err := store.ListSettings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, domain.MediumEmail, settings[0].Medium)
	assert.False(t, settings[0].Enabled)
	assert.Equal(t, domain.MediumSite, settings[1].Medium)
	assert.True(t, settings[1].Enabled)
}

func TestSQLiteStore_InsertNotice(t *testing.T) {
	store, sqlDB := newSQLiteStore(t)
	ctx := context.Background()

	sender := domain.UserID("u2")
	require.NoError(t, store.InsertNotice(ctx, &domain.Notice{
		ID: "n1", Recipient: "u1", Label: "invite", ShortText: "hi",
		Message: "<p>hi</p>", Sender: &sender, SentAt: time.Now().UTC(), Unseen: true,
	}))

	var (
		recipient, storedSender string
		unseen                  bool
	)
	err := sqlDB.QueryRowContext(ctx,
		`SELECT recipient, sender, unseen FROM notices WHERE id = ?`, "n1",
	).Scan(&recipient, &storedSender, &unseen)
	require.NoError(t, err)
	assert.Equal(t, "u1", recipient)
	assert.Equal(t, "u2", storedSender)
	assert.True(t, unseen)
}

func TestSQLiteStore_DispatchQueue(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i := range 3 {
		d := &domain.QueuedDispatch{
			Recipients: []domain.UserID{"u1", "u2"},
			Label:      "invite",
			Context:    domain.Context{"from": domain.UserRef("u3"), "n": "x"},
			OnSite:     true,
			EnqueuedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.InsertDispatch(ctx, d))
		assert.NotZero(t, d.ID)
	}

	pending, err := store.CountPendingDispatches(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	claimed, err := store.ClaimDispatches(ctx, "drain-a", 2, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Less(t, claimed[0].ID, claimed[1].ID)
	assert.Equal(t, []domain.UserID{"u1", "u2"}, claimed[0].Recipients)
	assert.Equal(t, domain.UserRef("u3"), claimed[0].Context["from"])
	require.NotNil(t, claimed[0].ClaimedBy)
	assert.Equal(t, "drain-a", *claimed[0].ClaimedBy)

	// A concurrent drain only sees the unclaimed remainder.
	rest, err := store.ClaimDispatches(ctx, "drain-b", 10, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rest, 1)

	pending, err = store.CountPendingDispatches(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pending)

	// Claims older than staleBefore are taken over.
	stolen, err := store.ClaimDispatches(ctx, "drain-c", 10, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, stolen, 3)

	for _, d := range stolen {
		require.NoError(t, store.DeleteDispatch(ctx, d.ID))
	}
	pending, err = store.CountPendingDispatches(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestSQLiteStore_Observations(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	ref := domain.Ref{Kind: "post", ID: "42"}

	require.NoError(t, store.UpsertObservation(ctx, &domain.Observation{
		UserID: "u1", Observed: ref, Label: "invite", Signal: "post_save", AddedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.UpsertObservation(ctx, &domain.Observation{
		UserID: "u1", Observed: ref, Label: "invite", Signal: "post_save", AddedAt: time.Now().UTC(),
	}))

	ok, err := store.ObservationExists(ctx, ref, "u1", "post_save")
	require.NoError(t, err)
	assert.True(t, ok)

	observers, err := store.ListObservers(ctx, ref, "post_save")
	require.NoError(t, err)
	require.Len(t, observers, 1)
	assert.Equal(t, domain.UserID("u1"), observers[0].UserID)

	require.NoError(t, store.DeleteObservation(ctx, ref, "u1", "post_save"))
	assert.ErrorIs(t, store.DeleteObservation(ctx, ref, "u1", "post_save"), domain.ErrNotFound)

	ok, err = store.ObservationExists(ctx, ref, "u1", "post_save")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_GetUser(t *testing.T) {
	store, sqlDB := newSQLiteStore(t)
	ctx := context.Background()

	_, err := sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name) VALUES (?,?,?)`, "u1", "ann@example.com", "Ann")
	require.NoError(t, err)

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &domain.User{ID: "u1", Email: "ann@example.com", Name: "Ann"}, u)

	_, err = store.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ClaimReturnsUndecodableRow(t *testing.T) {
	store, sqlDB := newSQLiteStore(t)
	ctx := context.Background()
	enqueued := time.Now().UTC().Add(-time.Minute)

	good := &domain.QueuedDispatch{
		Recipients: []domain.UserID{"u1"},
		Label:      "invite",
		Context:    domain.Context{"when": enqueued},
		EnqueuedAt: enqueued,
	}
	require.NoError(t, store.InsertDispatch(ctx, good))
	_, err := sqlDB.ExecContext(ctx, `
		INSERT INTO queued_dispatches (recipients, label, context, on_site, enqueued_at)
		VALUES (?,?,?,?,?)`, `["u2"]`, "invite", `{not json`, true, enqueued.Add(time.Second).UnixNano())
	require.NoError(t, err)

	claimed, err := store.ClaimDispatches(ctx, "drain-a", 10, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	assert.NoError(t, claimed[0].DecodeErr)
	when, ok := claimed[0].Context["when"].(time.Time)
	require.True(t, ok, "want time.Time, got %T", claimed[0].Context["when"])
	assert.True(t, enqueued.Equal(when))

	assert.Error(t, claimed[1].DecodeErr)
	assert.Equal(t, []domain.UserID{"u2"}, claimed[1].Recipients)
}
