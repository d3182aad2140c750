package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the scaling factor of most ERC-20 tokens (10^18 base units per unit).
const DefaultDecimals int32 = 18

// TokenAmount is a decimal token quantity with a fixed number of on-chain decimals.
// It converts losslessly to base units; verification compares base units only.
type TokenAmount struct {
	value    decimal.Decimal
	decimals int32
}

// ParseTokenAmount parses a human-readable decimal such as "10.00".
// Negative amounts and amounts finer than one base unit are rejected.
func ParseTokenAmount(s string, decimals int32) (TokenAmount, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return TokenAmount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return NewTokenAmount(v, decimals)
}

// NewTokenAmount wraps an existing decimal.
func NewTokenAmount(v decimal.Decimal, decimals int32) (TokenAmount, error) {
	if decimals < 0 || decimals > 36 {
		return TokenAmount{}, fmt.Errorf("%w: unsupported decimals %d", ErrInvalidAmount, decimals)
	}
	if v.IsNegative() {
		return TokenAmount{}, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, v)
	}
	if !v.Truncate(decimals).Equal(v) {
		return TokenAmount{}, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, v, decimals)
	}
	return TokenAmount{value: v, decimals: decimals}, nil
}

// AmountFromBaseUnits builds an amount from an on-chain integer.
func AmountFromBaseUnits(units *big.Int, decimals int32) TokenAmount {
	return TokenAmount{value: decimal.NewFromBigInt(units, -decimals), decimals: decimals}
}

// BaseUnits returns the integer on-chain representation.
func (a TokenAmount) BaseUnits() *big.Int {
	return a.value.Shift(a.decimals).BigInt()
}

func (a TokenAmount) Decimal() decimal.Decimal { return a.value }
func (a TokenAmount) Decimals() int32          { return a.decimals }
func (a TokenAmount) IsZero() bool             { return a.value.IsZero() }

func (a TokenAmount) String() string {
	return a.value.String()
}

type tokenAmountJSON struct {
	Value    string `json:"value"`
	Decimals int32  `json:"decimals"`
}

func (a TokenAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenAmountJSON{Value: a.value.String(), Decimals: a.decimals})
}

func (a *TokenAmount) UnmarshalJSON(data []byte) error {
	var raw tokenAmountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTokenAmount(raw.Value, raw.Decimals)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
