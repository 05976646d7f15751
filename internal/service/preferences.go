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

// Preferences resolves whether a user receives a notice type on a medium.
type Preferences struct {
	types  *Registry
	repo   repository.NoticeSettingRepository
	logger *zap.Logger
}

func NewPreferences(types *Registry, repo repository.NoticeSettingRepository, logger *zap.Logger) *Preferences {
	return &Preferences{types: types, repo: repo, logger: logger}
}

// IsEnabled returns the user's stored choice, or the notice type's default
// frequency for the medium when the user never chose. The default is stored
// on first use so later changes to the type don't flip existing users.
func (p *Preferences) IsEnabled(ctx context.Context, user domain.UserID, label string, medium domain.Medium) (bool, error) {
	if !medium.IsValid() {
		return false, domain.ErrInvalidMedium
	}
	nt, err := p.types.Get(ctx, label)
	if err != nil {
		return false, err
	}

	s, err := p.repo.GetSetting(ctx, user, label, medium)
	switch {
	case err == nil:
		return s.Enabled, nil
	case !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("get setting: %w", err)
	}

	enabled := nt.DefaultFrequency.Enables(medium)
	if err := p.repo.InsertSettingIfAbsent(ctx, &domain.NoticeSetting{
		UserID:    user,
		Label:     label,
		Medium:    medium,
		Enabled:   enabled,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		p.logger.Warn("failed to store default setting",
			zap.String("user", string(user)),
			zap.String("label", label),
			zap.String("medium", string(medium)),
			zap.Error(err),
		)
	}
	return enabled, nil
}

// SetEnabled stores the user's choice. Concurrent writers: last one wins.
func (p *Preferences) SetEnabled(ctx context.Context, user domain.UserID, label string, medium domain.Medium, enabled bool) error {
	if !medium.IsValid() {
		return domain.ErrInvalidMedium
	}
	if _, err := p.types.Get(ctx, label); err != nil {
		return err
	}
	return p.repo.UpsertSetting(ctx, &domain.NoticeSetting{
		UserID:    user,
		Label:     label,
		Medium:    medium,
		Enabled:   enabled,
		UpdatedAt: time.Now().UTC(),
	})
}

// Settings returns one row per notice type with the resolved value of each
// medium. Nothing is written.
func (p *Preferences) Settings(ctx context.Context, user domain.UserID) ([]domain.SettingsRow, error) {
	types, err := p.types.List(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := p.repo.ListSettings(ctx, user)
	if err != nil {
		return nil, err
	}

	explicit := make(map[string]map[domain.Medium]bool, len(stored))
	for _, s := range stored {
		if explicit[s.Label] == nil {
			explicit[s.Label] = make(map[domain.Medium]bool, len(domain.Media))
		}
		explicit[s.Label][s.Medium] = s.Enabled
	}

	rows := make([]domain.SettingsRow, 0, len(types))
	for _, nt := range types {
		row := domain.SettingsRow{NoticeType: nt, Media: make(map[domain.Medium]bool, len(domain.Media))}
		for _, m := range domain.Media {
			v, ok := explicit[nt.Label][m]
			if !ok {
				v = nt.DefaultFrequency.Enables(m)
			}
			row.Media[m] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
