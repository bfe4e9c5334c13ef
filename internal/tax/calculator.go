package tax

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSubtotal indicates a negative or unusable subtotal amount.
var ErrInvalidSubtotal = errors.New("invalid subtotal")

// Calculator computes tax and total amounts from a subtotal and a
// composite rate. It is stateless and safe for concurrent use.
type Calculator struct{}

// NewCalculator creates a new tax calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute returns the tax and total for a subtotal in cents and a
// composite rate in micros.
//
// taxCents is subtotal*rate rounded half-even to the cent; totalCents is
// the exact sum subtotal+tax with no further rounding.
func (c *Calculator) Compute(subtotalCents, rateMicros int64) (taxCents, totalCents int64, err error) {
	if subtotalCents < 0 {
		return 0, 0, fmt.Errorf("%w: %d cents", ErrInvalidSubtotal, subtotalCents)
	}
	if rateMicros < 0 {
		return 0, 0, fmt.Errorf("negative composite rate %d", rateMicros)
	}
	if rateMicros > 0 && subtotalCents > math.MaxInt64/rateMicros {
		return 0, 0, fmt.Errorf("%w: %d cents exceeds computable range", ErrInvalidSubtotal, subtotalCents)
	}
	taxCents = roundHalfEvenDiv(subtotalCents*rateMicros, RateScale)
	return taxCents, subtotalCents + taxCents, nil
}
