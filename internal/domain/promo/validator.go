package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// RepoValidator validates codes against a Repository. Validation is read-only:
// the same code and subtotal always yield the same Result for a given
// repository state.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by repo.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate normalizes code, looks it up and checks its time window, usage
// limit and minimum subtotal. Rejections are reported through the Result;
// the error is reserved for repository failures.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (Result, error) {
	code = Normalize(code)
	if code == "" {
		return Rejected(code, MsgEmptyCode), nil
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Rejected(code, MsgNotFound), nil
		}
		return Result{}, errors.Wrap(err, "lookup promo")
	}
	if !rule.Kind.Valid() {
		return Result{}, errors.Errorf("unsupported discount kind: %q", rule.Kind)
	}

	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return Rejected(code, MsgNotYetActive), nil
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return Rejected(code, MsgExpired), nil
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return Rejected(code, MsgUsageExceeded), nil
	}
	if subtotal.LessThan(rule.MinSubtotal) {
		return Rejected(code, MsgBelowMinimum), nil
	}

	return Accepted(rule), nil
}
