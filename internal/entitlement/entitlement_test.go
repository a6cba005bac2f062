package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
)

func TestWeekStart(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "monday maps to itself",
			in:   time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC),
			want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "midweek maps back to monday",
			in:   time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "sunday belongs to the preceding monday",
			in:   time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC),
			want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "next monday starts a new week",
			in:   time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "non-utc input normalizes to utc",
			in:   time.Date(2024, 1, 7, 23, 0, 0, 0, time.FixedZone("MSK", 3*3600)),
			want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WeekStart(tc.in))
		})
	}
}

func TestCanSubmitOffer(t *testing.T) {
	cap3 := 3
	capped := &domain.Plan{ID: "FREE", WeeklyOfferCap: &cap3}
	unlimited := &domain.Plan{ID: "PRO"}

	assert.True(t, CanSubmitOffer(capped, domain.WeeklyUsage{Count: 0}))
	assert.True(t, CanSubmitOffer(capped, domain.WeeklyUsage{Count: 2}))
	assert.False(t, CanSubmitOffer(capped, domain.WeeklyUsage{Count: 3}))
	assert.False(t, CanSubmitOffer(capped, domain.WeeklyUsage{Count: 7}))
	assert.True(t, CanSubmitOffer(unlimited, domain.WeeklyUsage{Count: 1000}))
	assert.True(t, CanSubmitOffer(nil, domain.WeeklyUsage{Count: 1000}))
}

func TestRemainingOffers(t *testing.T) {
	cap3 := 3
	capped := &domain.Plan{ID: "FREE", WeeklyOfferCap: &cap3}

	r := RemainingOffers(capped, domain.WeeklyUsage{Count: 1})
	if assert.NotNil(t, r) {
		assert.Equal(t, 2, *r)
	}
	// never negative, even if the cap shrank under existing usage
	r = RemainingOffers(capped, domain.WeeklyUsage{Count: 5})
	if assert.NotNil(t, r) {
		assert.Equal(t, 0, *r)
	}
	assert.Nil(t, RemainingOffers(&domain.Plan{ID: "PRO"}, domain.WeeklyUsage{Count: 5}))
	assert.Nil(t, RemainingOffers(nil, domain.WeeklyUsage{}))
}

func TestHasMessaging(t *testing.T) {
	assert.False(t, HasMessaging(nil))
	assert.False(t, HasMessaging(&domain.Plan{ID: "FREE"}))
	assert.True(t, HasMessaging(&domain.Plan{ID: "PREMIUM", ChatEnabled: true}))
}

func TestForbiddenError(t *testing.T) {
	err := ForbiddenError{Capability: "chat"}
	assert.Contains(t, err.Error(), "chat")
}
