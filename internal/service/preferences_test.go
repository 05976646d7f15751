package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

func TestPreferences_DefaultsFollowFrequency(t *testing.T) {
	tests := []struct {
		freq  domain.Frequency
		site  bool
		email bool
	}{
		{domain.FrequencyImmediate, true, true},
		{domain.FrequencySiteOnly, true, false},
		{domain.FrequencyEmailOnly, false, true},
		{domain.FrequencyNever, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			h := newHarness(t)
			h.createType(t, "invite", tt.freq)
			ctx := context.Background()

			site, err := h.prefs.IsEnabled(ctx, "u1", "invite", domain.MediumSite)
			require.NoError(t, err)
			email, err := h.prefs.IsEnabled(ctx, "u1", "invite", domain.MediumEmail)
			require.NoError(t, err)

			assert.Equal(t, tt.site, site)
			assert.Equal(t, tt.email, email)
		})
	}
}

func TestPreferences_DefaultIsStoredLazily(t *testing.T) {
	h := newHarness(t)
	h.createType(t, "invite", domain.FrequencySiteOnly)
	ctx := context.Background()

	_, err := h.store.GetSetting(ctx, "u1", "invite", domain.MediumEmail)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.prefs.IsEnabled(ctx, "u1", "invite", domain.MediumEmail)
	require.NoError(t, err)

	s, err := h.store.GetSetting(ctx, "u1", "invite", domain.MediumEmail)
	require.NoError(t, err)
	assert.False(t, s.Enabled)
}

func TestPreferences_ExplicitSettingWins(t *testing.T) {
	h := newHarness(t)
	h.createType(t, "invite", domain.FrequencyImmediate)
	ctx := context.Background()

	require.NoError(t, h.prefs.SetEnabled(ctx, "u1", "invite", domain.MediumEmail, false))
	enabled, err := h.prefs.IsEnabled(ctx, "u1", "invite", domain.MediumEmail)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, h.prefs.SetEnabled(ctx, "u1", "invite", domain.MediumEmail, true))
	enabled, err = h.prefs.IsEnabled(ctx, "u1", "invite", domain.MediumEmail)
	require.NoError(t, err)
	assert.True(t, enabled)

	other, err := h.prefs.IsEnabled(ctx, "u2", "invite", domain.MediumEmail)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestPreferences_Errors(t *testing.T) {
	h := newHarness(t)
	h.createType(t, "invite", domain.FrequencyImmediate)
	ctx := context.Background()

	_, err := h.prefs.IsEnabled(ctx, "u1", "nope", domain.MediumSite)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.prefs.IsEnabled(ctx, "u1", "invite", "sms")
	assert.ErrorIs(t, err, domain.ErrInvalidMedium)

	assert.ErrorIs(t, h.prefs.SetEnabled(ctx, "u1", "nope", domain.MediumSite, true), domain.ErrNotFound)
	assert.ErrorIs(t, h.prefs.SetEnabled(ctx, "u1", "invite", "sms", true), domain.ErrInvalidMedium)
}

func TestPreferences_Settings(t *testing.T) {
	h := newHarness(t)
	h.createType(t, "invite", domain.FrequencyImmediate)
	h.createType(t, "digest", domain.FrequencyEmailOnly)
	ctx := context.Background()

	require.NoError(t, h.prefs.SetEnabled(ctx, "u1", "invite", domain.MediumEmail, false))

	rows, err := h.prefs.Settings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "digest", rows[0].NoticeType.Label)
	assert.Equal(t, map[domain.Medium]bool{domain.MediumSite: false, domain.MediumEmail: true}, rows[0].Media)
	assert.Equal(t, "invite", rows[1].NoticeType.Label)
	assert.Equal(t, map[domain.Medium]bool{domain.MediumSite: true, domain.MediumEmail: false}, rows[1].Media)
}
