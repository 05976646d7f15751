package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/mail"
	"github.com/notifyhub/notice-dispatch/internal/ratelimiter"
	"github.com/notifyhub/notice-dispatch/internal/render"
	"github.com/notifyhub/notice-dispatch/internal/repository"
)

// DeliveryHooks are optional metric callbacks. Keeping them as plain funcs
// means this package doesn't import prometheus.
type DeliveryHooks struct {
	OnDelivered  func(medium domain.Medium, latency time.Duration)
	OnFailed     func(medium domain.Medium)
	OnSkipped    func()
	OnDispatched func(elapsed time.Duration)
}

// DispatcherConfig holds the site-wide values every notice is rendered with.
type DispatcherConfig struct {
	SiteName   string
	NoticesURL string
}

// DispatcherDeps are the collaborators of a Dispatcher. Limiter, Refs and
// Hooks are optional.
type DispatcherDeps struct {
	Types    *Registry
	Prefs    *Preferences
	Renderer *render.Renderer
	Notices  repository.NoticeRepository
	Users    UserDirectory
	Refs     RefResolver
	Mail     mail.Transport
	Limiter  *ratelimiter.MediumLimiters
	Hooks    DeliveryHooks
	Logger   *zap.Logger
}

// Dispatcher delivers a notice to each recipient synchronously.
// One recipient's failure never stops delivery to the others.
type Dispatcher struct {
	DispatcherDeps
	cfg DispatcherConfig
}

func NewDispatcher(deps DispatcherDeps, cfg DispatcherConfig) *Dispatcher {
	if deps.Refs == nil {
		deps.Refs = UserRefs{Users: deps.Users}
	}
	return &Dispatcher{DispatcherDeps: deps, cfg: cfg}
}

// Dispatch evaluates preferences, renders and delivers req to every
// recipient in order, returning after all have been attempted.
//
// An invalid request or unknown label fails the whole call before any
// recipient is touched. Everything after that is recorded per recipient in
// the report.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchReport, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	nt, err := d.Types.Get(ctx, req.Label)
	if err != nil {
		return nil, err
	}

	logger := d.Logger.With(zap.String("label", req.Label))
	base := map[string]any{
		"notice":       nt.Display,
		"notices_url":  d.cfg.NoticesURL,
		"current_site": d.cfg.SiteName,
		"sender":       d.sender(ctx, req.Sender, logger),
	}
	extra := resolveContext(ctx, req.Context, d.Refs, logger)

	report := &domain.DispatchReport{Label: req.Label}
	for _, id := range req.Recipients {
		report.Attempted++
		d.deliver(ctx, nt, req, id, base, extra, report, logger.With(zap.String("recipient", string(id))))
	}

	if d.Hooks.OnDispatched != nil {
		d.Hooks.OnDispatched(time.Since(start))
	}
	logger.Debug("dispatch complete",
		zap.Int("attempted", report.Attempted),
		zap.Int("on_site", report.OnSite),
		zap.Int("emailed", report.Emailed),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failures)),
	)
	return report, nil
}

func (d *Dispatcher) deliver(
	ctx context.Context,
	nt *domain.NoticeType,
	req domain.DispatchRequest,
	id domain.UserID,
	base, extra map[string]any,
	report *domain.DispatchReport,
	logger *zap.Logger,
) {
	fail := func(medium domain.Medium, err error) {
		logger.Warn("delivery failed", zap.String("medium", string(medium)), zap.Error(err))
		report.Fail(id, medium, err)
		if d.Hooks.OnFailed != nil {
			d.Hooks.OnFailed(medium)
		}
	}

	user, err := d.Users.GetUser(ctx, id)
	if err != nil {
		fail("", fmt.Errorf("resolve recipient: %w", err))
		return
	}

	site, err := d.Prefs.IsEnabled(ctx, id, nt.Label, domain.MediumSite)
	if err != nil {
		fail(domain.MediumSite, err)
		return
	}
	email, err := d.Prefs.IsEnabled(ctx, id, nt.Label, domain.MediumEmail)
	if err != nil {
		fail(domain.MediumEmail, err)
		return
	}

	wantSite := req.OnSite && site
	wantEmail := email && user.Email != ""
	if email && user.Email == "" {
		logger.Debug("email enabled but recipient has no address")
	}
	if !wantSite && !wantEmail {
		report.Skipped = append(report.Skipped, id)
		if d.Hooks.OnSkipped != nil {
			d.Hooks.OnSkipped()
		}
		return
	}

	data := mergeData(base, extra)
	data["user"] = user
	rendered, err := d.Renderer.Render(nt.Label, data)
	if err != nil {
		fail("", err)
		return
	}

	if wantSite {
		started := time.Now()
		if err := d.Notices.InsertNotice(ctx, &domain.Notice{
			ID:        uuid.New().String(),
			Recipient: id,
			Label:     nt.Label,
			ShortText: rendered.ShortText,
			Message:   rendered.SiteHTML,
			Sender:    req.Sender,
			SentAt:    time.Now().UTC(),
			Unseen:    true,
		}); err != nil {
			fail(domain.MediumSite, fmt.Errorf("%w: insert notice: %w", domain.ErrPersistence, err))
		} else {
			report.OnSite++
			d.delivered(domain.MediumSite, started)
		}
	}

	if wantEmail {
		started := time.Now()
		if err := d.sendMail(ctx, user, rendered, data); err != nil {
			fail(domain.MediumEmail, err)
			return
		}
		report.Emailed++
		d.delivered(domain.MediumEmail, started)
	}
}

func (d *Dispatcher) sendMail(ctx context.Context, user *domain.User, rendered *render.Rendered, data map[string]any) error {
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx, domain.MediumEmail); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", domain.ErrTransport, err)
		}
	}

	subject, body := d.Renderer.Email(rendered, data)
	err := d.Mail.SendMail(ctx, mail.Message{
		To:       user.Email,
		Subject:  subject,
		TextBody: body,
		HTMLBody: rendered.FullHTML,
	})
	if err != nil && !errors.Is(err, domain.ErrTransport) {
		err = fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return err
}

func (d *Dispatcher) delivered(medium domain.Medium, started time.Time) {
	if d.Hooks.OnDelivered != nil {
		d.Hooks.OnDelivered(medium, time.Since(started))
	}
}

// sender resolves the attributed user. An unknown sender is rendered as its id.
func (d *Dispatcher) sender(ctx context.Context, id *domain.UserID, logger *zap.Logger) any {
	if id == nil {
		return nil
	}
	u, err := d.Users.GetUser(ctx, *id)
	if err != nil {
		logger.Warn("unresolved sender", zap.String("sender", string(*id)), zap.Error(err))
		return *id
	}
	return u
}
