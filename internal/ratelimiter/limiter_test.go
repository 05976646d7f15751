package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

func TestMediumLimiters_SiteIsUnthrottled(t *testing.T) {
	l := New(1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx, domain.MediumSite))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestMediumLimiters_EmailHonoursCancellation(t *testing.T) {
	l := New(1)
	require.NoError(t, l.Wait(context.Background(), domain.MediumEmail))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, domain.MediumEmail))
}

func TestMediumLimiters_ZeroRateDisablesThrottle(t *testing.T) {
	l := New(0)
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), domain.MediumEmail))
	}
}

func TestMediumLimiters_UnknownMedium(t *testing.T) {
	assert.ErrorIs(t, New(5).Wait(context.Background(), "fax"), domain.ErrInvalidMedium)
}
