package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenominationSetTotal(t *testing.T) {
	set := DenominationSet{
		{Value: decimal.NewFromInt(1000), Count: 5},
		{Value: decimal.NewFromInt(500), Count: 3},
		{Value: decimal.NewFromFloat(0.50), Count: 4},
	}
	assert.True(t, set.Total().Equal(decimal.NewFromInt(6502)),
		"got %s", set.Total())
}

func TestDenominationSetTotalEmpty(t *testing.T) {
	assert.True(t, DenominationSet{}.Total().IsZero())
}

func TestDenominationSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     DenominationSet
		wantErr bool
	}{
		{
			name: "valid",
			set: DenominationSet{
				{Value: decimal.NewFromInt(100), Count: 2},
			},
		},
		{
			name: "zero count is allowed",
			set: DenominationSet{
				{Value: decimal.NewFromInt(100), Count: 0},
			},
		},
		{
			name: "negative count",
			set: DenominationSet{
				{Value: decimal.NewFromInt(100), Count: -1},
			},
			wantErr: true,
		},
		{
			name: "zero value",
			set: DenominationSet{
				{Value: decimal.Zero, Count: 1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAmountsEqual(t *testing.T) {
	a := decimal.NewFromFloat(100.00)
	assert.True(t, AmountsEqual(a, decimal.NewFromFloat(100.005)))
	assert.True(t, AmountsEqual(a, decimal.NewFromFloat(100.01)))
	assert.False(t, AmountsEqual(a, decimal.NewFromFloat(100.02)))
	assert.False(t, AmountsEqual(a, decimal.NewFromFloat(99.98)))
}
