package checkout

import (
	"github.com/go-faster/errors"

	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
)

// Guard messages shown to the buyer.
const (
	MsgPolicyNotAccepted = "Please accept the cancellation and refund policy"
	MsgPayerIncomplete   = "Please complete your billing details"
	MsgEmptyCart         = "Your cart is empty"
)

// Field keys used in ValidationError.
const (
	FieldPolicy = "policyAccepted"
	FieldPayer  = "payer"
	FieldCart   = "items"
)

// CanSubmit is the policy gate: submission requires both an accepted
// cancellation policy and complete payer details.
func CanSubmit(policyAccepted, payerDetailsComplete bool) bool {
	return policyAccepted && payerDetailsComplete
}

// CheckSubmit evaluates every submit guard and reports all failures at once.
// Session.Submit calls it regardless of what the caller checked before.
func CheckSubmit(policyAccepted bool, payer PayerDetails, b *pricing.Breakdown) error {
	verr := &ValidationError{}

	if !policyAccepted {
		verr.add(FieldPolicy, MsgPolicyNotAccepted)
	}
	if err := payer.Validate(); err != nil {
		verr.add(FieldPayer, MsgPayerIncomplete)
		var perr *ValidationError
		if errors.As(err, &perr) {
			verr.Problems = append(verr.Problems, perr.Problems...)
		}
	}
	if b == nil {
		verr.add(FieldCart, MsgEmptyCart)
	}

	if verr.empty() {
		return nil
	}
	return verr
}
