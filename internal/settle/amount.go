package settle

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an exact rational money value. The zero value is 0.
// Amounts are immutable: every operation returns a new value.
type Amount struct {
	r *big.Rat
}

// Zero is the additive identity.
var Zero = Amount{}

// NewAmount converts a decimal into an exact Amount.
func NewAmount(d decimal.Decimal) Amount {
	num := d.Coefficient()
	exp := d.Exponent()
	r := new(big.Rat)
	if exp >= 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
		r.SetInt(num.Mul(num, scale))
	} else {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-exp)), nil)
		r.SetFrac(num, scale)
	}
	return Amount{r: r}
}

// AmountFromInt returns the Amount for a whole number.
func AmountFromInt(v int64) Amount {
	return Amount{r: new(big.Rat).SetInt64(v)}
}

// ParseAmount parses a decimal string ("12.50") or an exact fraction ("100/3").
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		r, ok := new(big.Rat).SetString(s)
		if !ok {
			return Amount{}, fmt.Errorf("invalid amount %q", s)
		}
		return Amount{r: r}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return NewAmount(d), nil
}

func (a Amount) rat() *big.Rat {
	if a.r == nil {
		return new(big.Rat)
	}
	return a.r
}

// Rat returns a copy of the underlying rational.
func (a Amount) Rat() *big.Rat {
	return new(big.Rat).Set(a.rat())
}

func (a Amount) Add(b Amount) Amount {
	return Amount{r: new(big.Rat).Add(a.rat(), b.rat())}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{r: new(big.Rat).Sub(a.rat(), b.rat())}
}

func (a Amount) Neg() Amount {
	return Amount{r: new(big.Rat).Neg(a.rat())}
}

// DivInt divides by a positive integer. It panics on n == 0, callers guard.
func (a Amount) DivInt(n int) Amount {
	return Amount{r: new(big.Rat).Quo(a.rat(), new(big.Rat).SetInt64(int64(n)))}
}

func (a Amount) Cmp(b Amount) int { return a.rat().Cmp(b.rat()) }

func (a Amount) Sign() int { return a.rat().Sign() }

func (a Amount) IsZero() bool { return a.Sign() == 0 }

func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	total := new(big.Rat)
	for _, a := range amounts {
		total.Add(total, a.rat())
	}
	return Amount{r: total}
}

// Decimal rounds the amount half away from zero to the given number of places.
func (a Amount) Decimal(places int32) decimal.Decimal {
	r := a.rat()
	num := decimal.NewFromBigInt(r.Num(), 0)
	if r.IsInt() {
		return num.Round(places)
	}
	den := decimal.NewFromBigInt(r.Denom(), 0)
	return num.DivRound(den, places)
}

// places returns the number of decimal places needed to write the amount
// exactly, and false when the expansion does not terminate.
func (a Amount) places() (int, bool) {
	den := new(big.Int).Set(a.rat().Denom())
	counts := [2]int{}
	for i, p := range []int64{2, 5} {
		bp := big.NewInt(p)
		for {
			q, rem := new(big.Int).QuoRem(den, bp, new(big.Int))
			if rem.Sign() != 0 {
				break
			}
			den = q
			counts[i]++
		}
	}
	if den.Cmp(big.NewInt(1)) != 0 {
		return 0, false
	}
	return max(counts[0], counts[1]), true
}

// Exact reports whether the amount has a finite decimal expansion.
func (a Amount) Exact() bool {
	_, ok := a.places()
	return ok
}

// String renders the exact value: a decimal when one exists, otherwise "num/den".
func (a Amount) String() string {
	n, ok := a.places()
	if !ok {
		return a.rat().String()
	}
	return a.rat().FloatString(n)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// accept bare JSON numbers too
		s = string(b)
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
