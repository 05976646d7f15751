package service_test

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/mail"
	"github.com/notifyhub/notice-dispatch/internal/queue"
	"github.com/notifyhub/notice-dispatch/internal/render"
	"github.com/notifyhub/notice-dispatch/internal/repository"
	"github.com/notifyhub/notice-dispatch/internal/service"
)

var errMailbox = errors.New("451 mailbox unavailable")

// fakeMail records sent messages and fails for addresses in fail.
type fakeMail struct {
	mu   sync.Mutex
	sent []mail.Message
	fail map[string]bool
}

func (f *fakeMail) SendMail(_ context.Context, m mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[m.To] {
		return errMailbox
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeMail) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.To
	}
	return out
}

type harness struct {
	store        *repository.MockStore
	mail         *fakeMail
	registry     *service.Registry
	prefs        *service.Preferences
	dispatcher   *service.Dispatcher
	queue        *queue.DeferredQueue
	router       *service.Router
	observations *service.Observations
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	queueAll  bool
	templates []fs.FS
	hooks     service.DeliveryHooks
}

func withQueueAll() harnessOption {
	return func(c *harnessConfig) { c.queueAll = true }
}

func withTemplates(layers ...fs.FS) harnessOption {
	return func(c *harnessConfig) { c.templates = layers }
}

func withHooks(h service.DeliveryHooks) harnessOption {
	return func(c *harnessConfig) { c.hooks = h }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{templates: []fs.FS{render.Defaults()}}
	for _, o := range opts {
		o(&cfg)
	}

	logger := zap.NewNop()
	store := repository.NewMockStore()
	for _, u := range []domain.User{
		{ID: "u0", Email: "ann@example.com", Name: "Ann"},
		{ID: "u1", Email: "u1@example.com", Name: "Bob"},
		{ID: "u2", Email: "u2@example.com", Name: "Cid"},
		{ID: "u3", Email: "u3@example.com", Name: "Dee"},
	} {
		store.AddUser(u)
	}

	h := &harness{store: store, mail: &fakeMail{fail: map[string]bool{}}}
	h.registry = service.NewRegistry(store, logger)
	h.prefs = service.NewPreferences(h.registry, store, logger)
	h.dispatcher = service.NewDispatcher(service.DispatcherDeps{
		Types:    h.registry,
		Prefs:    h.prefs,
		Renderer: render.NewRenderer(render.NewFSSource(cfg.templates...)),
		Notices:  store,
		Users:    store,
		Mail:     h.mail,
		Hooks:    cfg.hooks,
		Logger:   logger,
	}, service.DispatcherConfig{SiteName: "Example", NoticesURL: "https://example.com/notices"})
	h.queue = queue.New(store, h.registry, h.dispatcher, queue.Config{}, logger)
	h.router = service.NewRouter(h.dispatcher, h.queue, service.RouterConfig{QueueAllByDefault: cfg.queueAll}, logger)
	h.observations = service.NewObservations(h.registry, store, h.router, logger)
	return h
}

func (h *harness) createType(t *testing.T, label string, freq domain.Frequency) {
	t.Helper()
	_, err := h.registry.CreateNoticeType(context.Background(), label, "Invitation", "you were invited", freq)
	require.NoError(t, err)
}

func users(ids ...string) []domain.UserID {
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out
}
