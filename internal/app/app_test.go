package app

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/config"
	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/render"
	"github.com/notifyhub/notice-dispatch/internal/repository"
	"github.com/notifyhub/notice-dispatch/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	seed := filepath.Join(dir, "notice_types.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
notice_types:
  - label: invite
    display: Invitation
    default_frequency: site_only
`), 0o600))

	templates := filepath.Join(dir, "templates", "invite")
	require.NoError(t, os.MkdirAll(templates, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(templates, "short.txt"), []byte("{{.user.Name}}, you are invited"), 0o600))

	return &config.Config{
		DatabaseDriver:  config.DriverSQLite,
		DatabaseURL:     filepath.Join(dir, "notices.db"),
		DBBusyTimeout:   time.Second,
		DrainBatchSize:  10,
		DrainClaimTTL:   time.Minute,
		MailTransport:   config.MailLog,
		MailFrom:        "notices@example.com",
		MailRateLimit:   0,
		TemplateDir:     filepath.Join(dir, "templates"),
		NoticeTypesFile: seed,
		SiteName:        "Example",
		SiteURL:         "https://example.com",
		NoticesPath:     "/notices",
	}
}

func TestBuild_SeedsTypesAndUsesTemplateDir(t *testing.T) {
	cfg := testConfig(t)
	store := repository.NewMockStore()
	store.AddUser(domain.User{ID: "u1", Email: "ann@example.com", Name: "Ann"})

	a, err := Build(context.Background(), cfg, store, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)

	nt, err := a.Registry.Get(context.Background(), "invite")
	require.NoError(t, err)
	assert.Equal(t, domain.FrequencySiteOnly, nt.DefaultFrequency)

	res, err := a.Router.Send(context.Background(), domain.DispatchRequest{
		Recipients: []domain.UserID{"u1"},
		Label:      "invite",
		OnSite:     true,
	}, service.SendOptions{Now: true})
	require.NoError(t, err)
	require.NotNil(t, res.Report)
	assert.Equal(t, 1, res.Report.OnSite)
	assert.Zero(t, res.Report.Emailed)

	notices := store.NoticesFor("u1")
	require.Len(t, notices, 1)
	assert.Equal(t, "Ann, you are invited", notices[0].ShortText)
}

func TestBuild_BadSeedFileFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.NoticeTypesFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg, repository.NewMockStore(), prometheus.NewRegistry(), zap.NewNop())
	assert.Error(t, err)
}

func TestNew_SQLiteQueueRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, closeStore, err := New(ctx, cfg, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	defer closeStore()

	res, err := a.Router.Send(ctx, domain.DispatchRequest{
		Recipients: []domain.UserID{"nobody"},
		Label:      "invite",
		OnSite:     true,
	}, service.SendOptions{Queue: true})
	require.NoError(t, err)
	require.NotNil(t, res.Queued)

	pending, err := a.Queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	report, err := a.Queue.Drain(ctx, DrainOptions(cfg))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Claimed)

	pending, err = a.Queue.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestNew_QueuedTimeRendersLikeSendNow(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	templates := filepath.Join(cfg.TemplateDir, "invite", "short.txt")
	require.NoError(t, os.WriteFile(templates, []byte(`due {{.when.Format "Jan 2"}}`), 0o600))

	a, closeStore, err := New(ctx, cfg, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	defer closeStore()

	req := domain.DispatchRequest{
		Recipients: []domain.UserID{"u1"},
		Label:      "invite",
		Context:    domain.Context{"when": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		OnSite:     true,
	}
	_, err = a.Router.Send(ctx, req, service.SendOptions{Queue: true})
	require.NoError(t, err)

	claimed, err := a.Store.ClaimDispatches(ctx, "test", 10, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, claimed[0].DecodeErr)

	renderer := render.NewRenderer(render.NewFSSource(os.DirFS(cfg.TemplateDir), render.Defaults()))
	now, err := renderer.Render("invite", map[string]any(req.Context))
	require.NoError(t, err)
	queued, err := renderer.Render("invite", map[string]any(claimed[0].Context))
	require.NoError(t, err)
	assert.Equal(t, "due Jan 2", now.ShortText)
	assert.Equal(t, now.ShortText, queued.ShortText)
}

func TestNew_NaNContextIsInvalidWhenQueued(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, closeStore, err := New(ctx, cfg, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	defer closeStore()

	_, err = a.Router.Send(ctx, domain.DispatchRequest{
		Recipients: []domain.UserID{"u1"},
		Label:      "invite",
		Context:    domain.Context{"score": math.NaN()},
	}, service.SendOptions{Queue: true})
	require.ErrorIs(t, err, domain.ErrInvalidContext)
	assert.NotErrorIs(t, err, domain.ErrPersistence)

	pending, err := a.Queue.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}
