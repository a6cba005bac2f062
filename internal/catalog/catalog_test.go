package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karras2025-collab/it-freelance-exchange/internal/config"
)

func TestFromConfigDefaults(t *testing.T) {
	cat, err := FromConfig(config.Default())
	require.NoError(t, err)

	plans := cat.Plans()
	require.Len(t, plans, 3)

	free, err := cat.ByID("FREE")
	require.NoError(t, err)
	require.NotNil(t, free.WeeklyOfferCap)
	require.Equal(t, 3, *free.WeeklyOfferCap)
	require.False(t, free.ChatEnabled)
	require.Equal(t, 0, free.PriceMonthly)

	pro, err := cat.ByID("PRO")
	require.NoError(t, err)
	require.Nil(t, pro.WeeklyOfferCap)
	require.False(t, pro.ChatEnabled)

	premium, err := cat.ByID("PREMIUM")
	require.NoError(t, err)
	require.Nil(t, premium.WeeklyOfferCap)
	require.True(t, premium.ChatEnabled)

	require.True(t, cat.Has("FREE"))
	require.False(t, cat.Has("ENTERPRISE"))
	_, err = cat.ByID("ENTERPRISE")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestFromConfigCurrencyFallback(t *testing.T) {
	cfg := config.Default()
	cfg.Plans[0].Currency = ""
	cat, err := FromConfig(cfg)
	require.NoError(t, err)
	p, err := cat.ByID(cfg.Plans[0].ID)
	require.NoError(t, err)
	require.Equal(t, cfg.Exchange.DefaultCurrency, p.Currency)
}
