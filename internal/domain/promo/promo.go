package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage takes Value percent off the subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed takes a fixed amount off the subtotal, capped at the subtotal.
	KindFixed Kind = "fixed"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPercentage || k == KindFixed
}

var (
	// ErrNotFound is returned by repositories when no active promotion
	// matches a code.
	ErrNotFound = errors.New("promo code not found")
	// ErrUsageLimitReached is returned by Redeem when the promotion has no
	// uses left.
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
)

// User-facing rejection messages.
const (
	MsgEmptyCode     = "Please enter a promo code"
	MsgNotFound      = "Promo code not found"
	MsgExpired       = "Promo code expired"
	MsgNotYetActive  = "Promo code is not active yet"
	MsgUsageExceeded = "Promo code usage limit reached"
	MsgBelowMinimum  = "Order subtotal is below the minimum for this promo code"
)

// Rule is a stored promotion.
type Rule struct {
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	MinSubtotal decimal.Decimal
	MaxDiscount decimal.Decimal
	Description string
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	MaxUses     int
	Uses        int
}

// Repository looks up promotions.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	ListCodes(ctx context.Context) ([]string, error)
}

// Redeemer consumes promotion usage when an order is finalized. Validation
// never consumes usage.
type Redeemer interface {
	Redeem(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

// Normalize trims and upper-cases a user-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
