package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

func TestRegistry_CreateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.registry.CreateNoticeType(ctx, "invite", "Invitation", "first", domain.FrequencyImmediate)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = h.registry.CreateNoticeType(ctx, "invite", "Changed", "second", domain.FrequencyNever)
	require.NoError(t, err)
	assert.False(t, created)

	nt, err := h.registry.Get(ctx, "invite")
	require.NoError(t, err)
	assert.Equal(t, "Invitation", nt.Display)
	assert.Equal(t, "first", nt.Description)
	assert.Equal(t, domain.FrequencyImmediate, nt.DefaultFrequency)
}

func TestRegistry_CreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		label string
		freq  domain.Frequency
		want  error
	}{
		{"empty label", "", domain.FrequencyImmediate, domain.ErrInvalidLabel},
		{"long label", "a_label_that_is_well_over_forty_characters_long", domain.FrequencyImmediate, domain.ErrInvalidLabel},
		{"path label", "../invite", domain.FrequencyImmediate, domain.ErrInvalidLabel},
		{"bad frequency", "invite", "hourly", domain.ErrInvalidFrequency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.registry.CreateNoticeType(ctx, tt.label, "x", "x", tt.freq)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegistry_EmptyFrequencyMeansImmediate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.registry.CreateNoticeType(ctx, "invite", "", "", "")
	require.NoError(t, err)

	nt, err := h.registry.Get(ctx, "invite")
	require.NoError(t, err)
	assert.Equal(t, domain.FrequencyImmediate, nt.DefaultFrequency)
	assert.Equal(t, "invite", nt.Display)
}

func TestRegistry_GetUnknown(t *testing.T) {
	h := newHarness(t)
	_, err := h.registry.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_ListSortedByLabel(t *testing.T) {
	h := newHarness(t)
	h.createType(t, "zeta", "")
	h.createType(t, "alpha", "")

	list, err := h.registry.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Label)
	assert.Equal(t, "zeta", list[1].Label)
}

func TestRegistry_Seed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "notice_types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
notice_types:
  - label: invite
    display: Invitation received
    description: someone invited you
    default_frequency: immediate
  - label: digest
    display: Weekly digest
    default_frequency: email_only
`), 0o600))

	n, err := h.registry.Seed(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	nt, err := h.registry.Get(ctx, "digest")
	require.NoError(t, err)
	assert.Equal(t, domain.FrequencyEmailOnly, nt.DefaultFrequency)

	n, err = h.registry.Seed(ctx, path)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegistry_SeedRejectsBadEntry(t *testing.T) {
	h := newHarness(t)

	path := filepath.Join(t.TempDir(), "notice_types.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notice_types:\n  - label: x\n    default_frequency: hourly\n"), 0o600))

	_, err := h.registry.Seed(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrInvalidFrequency)
}
