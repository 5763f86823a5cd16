package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
)

func TestNewFeeRate(t *testing.T) {
	tests := []struct {
		rate  string
		valid bool
	}{
		{"0", true},
		{"0.15", true},
		{"0.9999", true},
		{"0.12345", false},
		{"1", false},
		{"-0.01", false},
	}

	for _, tt := range tests {
		t.Run(tt.rate, func(t *testing.T) {
			_, err := NewFeeRate(decimal.RequireFromString(tt.rate))
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperror.HasCode(err, apperror.ErrCodeValidation))
		})
	}
}

func TestMoney_Net(t *testing.T) {
	m, err := NewMoney(decimal.NewFromInt(100), "USDT")
	require.NoError(t, err)

	net := m.Net(MustFeeRate("0.1234"))
	assert.True(t, net.Amount.Equal(decimal.RequireFromString("87.66")), net.Amount.String())
	assert.Equal(t, "USDT", net.Currency)
}
