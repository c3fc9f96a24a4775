package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromMinor(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		want     string
	}{
		{amount: 2500, currency: "usd", want: "25"},
		{amount: 1999, currency: "EUR", want: "19.99"},
		{amount: 500, currency: "jpy", want: "500"},
		{amount: 1000, currency: "KRW", want: "1000"},
		{amount: 12345, currency: "kwd", want: "12.345"},
	}
	for _, tc := range cases {
		got := FromMinor(tc.amount, tc.currency)
		assert.Equal(t, tc.want, got.String(), "%d %s", tc.amount, tc.currency)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "USD", NormalizeCurrency(" usd "))
}
