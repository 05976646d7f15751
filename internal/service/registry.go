package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/notifyhub/notice-dispatch/internal/domain"
	"github.com/notifyhub/notice-dispatch/internal/repository"
)

// Registry maps labels to notice type definitions.
// Types never change once created, so successful lookups are cached.
type Registry struct {
	repo   repository.NoticeTypeRepository
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*domain.NoticeType
}

func NewRegistry(repo repository.NoticeTypeRepository, logger *zap.Logger) *Registry {
	return &Registry{
		repo:   repo,
		logger: logger,
		cache:  make(map[string]*domain.NoticeType),
	}
}

// CreateNoticeType registers a notice type. If the label already exists the
// stored display and description are kept and created is false. An empty
// frequency means immediate.
func (r *Registry) CreateNoticeType(
	ctx context.Context,
	label, display, description string,
	freq domain.Frequency,
) (created bool, err error) {
	if err := domain.ValidateLabel(label); err != nil {
		return false, err
	}
	if freq == "" {
		freq = domain.FrequencyImmediate
	}
	if !freq.IsValid() {
		return false, domain.ErrInvalidFrequency
	}
	if display == "" {
		display = label
	}

	created, err = r.repo.InsertNoticeTypeIfAbsent(ctx, &domain.NoticeType{
		Label:            label,
		Display:          display,
		Description:      description,
		DefaultFrequency: freq,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("create notice type %q: %w", label, err)
	}
	if created {
		r.logger.Info("notice type created", zap.String("label", label))
	}
	return created, nil
}

// Get returns the notice type for label or an error wrapping
// domain.ErrNotFound.
func (r *Registry) Get(ctx context.Context, label string) (*domain.NoticeType, error) {
	r.mu.RLock()
	nt, ok := r.cache[label]
	r.mu.RUnlock()
	if ok {
		return nt, nil
	}

	nt, err := r.repo.GetNoticeType(ctx, label)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[label] = nt
	r.mu.Unlock()
	return nt, nil
}

func (r *Registry) List(ctx context.Context) ([]*domain.NoticeType, error) {
	return r.repo.ListNoticeTypes(ctx)
}

type seedFile struct {
	NoticeTypes []domain.NoticeType `yaml:"notice_types"`
}

// Seed creates every notice type listed in a YAML file of the form
//
//	notice_types:
//	  - label: invite
//	    display: Invitation received
//	    description: someone invited you
//	    default_frequency: immediate
//
// Existing types are left as they are. It returns the number created.
func (r *Registry) Seed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read notice types: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse notice types %s: %w", path, err)
	}

	n := 0
	for i, nt := range f.NoticeTypes {
		created, err := r.CreateNoticeType(ctx, nt.Label, nt.Display, nt.Description, nt.DefaultFrequency)
		if err != nil {
			return n, fmt.Errorf("notice type %d (%q): %w", i, nt.Label, err)
		}
		if created {
			n++
		}
	}
	return n, nil
}
