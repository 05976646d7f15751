package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/repository"
)

// Observations lets users follow an application object and be notified
// when the host reports a signal on it (by default "post_save").
type Observations struct {
	types  *Registry
	repo   repository.ObservationRepository
	router *Router
	logger *zap.Logger
}

func NewObservations(types *Registry, repo repository.ObservationRepository, router *Router, logger *zap.Logger) *Observations {
	return &Observations{types: types, repo: repo, router: router, logger: logger}
}

// Observe subscribes user to signal on observed, notifying with label.
// Observing again replaces the label.
func (o *Observations) Observe(ctx context.Context, observed domain.Ref, user domain.UserID, label, signal string) error {
	if err := observed.Validate(); err != nil {
		return err
	}
	if _, err := o.types.Get(ctx, label); err != nil {
		return err
	}
	return o.repo.UpsertObservation(ctx, &domain.Observation{
		UserID:   user,
		Observed: observed,
		Label:    label,
		Signal:   signalOrDefault(signal),
		AddedAt:  time.Now().UTC(),
	})
}

// StopObserving removes a subscription; domain.ErrNotFound if there was none.
func (o *Observations) StopObserving(ctx context.Context, observed domain.Ref, user domain.UserID, signal string) error {
	return o.repo.DeleteObservation(ctx, observed, user, signalOrDefault(signal))
}

func (o *Observations) IsObserving(ctx context.Context, observed domain.Ref, user domain.UserID, signal string) (bool, error) {
	return o.repo.ObservationExists(ctx, observed, user, signalOrDefault(signal))
}

// NotifyObservers sends each observer's notice type for observed, with the
// object available to templates as "observed". Failures are per observer;
// the count of observers successfully sent to (or queued for) is returned.
func (o *Observations) NotifyObservers(
	ctx context.Context,
	observed domain.Ref,
	signal string,
	extra domain.Context,
	opts SendOptions,
) (int, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	if err := observed.Validate(); err != nil {
		return 0, err
	}
	if err := extra.Validate(); err != nil {
		return 0, err
	}

	observers, err := o.repo.ListObservers(ctx, observed, signalOrDefault(signal))
	if err != nil {
		return 0, fmt.Errorf("list observers: %w", err)
	}

	sent := 0
	for _, obs := range observers {
		c := extra.Clone()
		c["observed"] = observed

		_, err := o.router.Send(ctx, domain.DispatchRequest{
			Recipients: []domain.UserID{obs.UserID},
			Label:      obs.Label,
			Context:    c,
			OnSite:     true,
		}, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return sent, err
			}
			o.logger.Warn("observer notice failed",
				zap.Stringer("observed", observed),
				zap.String("user", string(obs.UserID)),
				zap.String("label", obs.Label),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent, nil
}

func signalOrDefault(signal string) string {
	if signal == "" {
		return domain.DefaultSignal
	}
	return signal
}
