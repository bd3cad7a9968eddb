package rma

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTerm(t *testing.T) {
	cases := []struct {
		in   string
		want Term
	}{
		{"12 Months", Term{12, "Months"}},
		{"1 Month", Term{1, "Months"}},
		{"30 days", Term{30, "Days"}},
		{"2 Years", Term{2, "Years"}},
		{"1 year", Term{1, "Years"}},
		{"0 Days", Term{0, "Days"}},
	}
	for _, tc := range cases {
		got, err := ParseTerm(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "Months", "12", "twelve Months", "-1 Months", "12 Fortnights", "1 2 Months"} {
		_, err := ParseTerm(bad)
		assert.Error(t, err, bad)
	}
}

func TestExpiryFrom(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), Term{30, "Days"}.ExpiryFrom(start))
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC), Term{12, "Months"}.ExpiryFrom(start))
	assert.Equal(t, time.Date(2028, 1, 15, 0, 0, 0, 0, time.UTC), Term{2, "Years"}.ExpiryFrom(start))
}

func TestStatusAt(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, WarrantyValid, StatusAt("12 Months", now.AddDate(0, -6, 0), now))
	assert.Equal(t, WarrantyExpired, StatusAt("12 Months", now.AddDate(0, -13, 0), now))
	// expiry day itself is still covered
	assert.Equal(t, WarrantyValid, StatusAt("12 Months", now.AddDate(-1, 0, 0), now))
	// unparseable terms are reported, never rejected
	assert.Equal(t, WarrantyUnknown, StatusAt("lifetime", now, now))
	assert.Equal(t, WarrantyUnknown, StatusAt("", now, now))
}
