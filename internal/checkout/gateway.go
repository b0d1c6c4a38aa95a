package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
)

// MsgPaymentFailed is stored when the gateway gives no usable reason.
const MsgPaymentFailed = "payment could not be processed"

// OrderStatus is the gateway's verdict.
type OrderStatus string

const (
	StatusSuccess OrderStatus = "success"
	StatusFailure OrderStatus = "failure"
)

// OrderRequest is sent to the gateway once per attempt.
type OrderRequest struct {
	IdempotencyKey  string
	Items           []pricing.Item
	Payer           PayerDetails
	PaymentMethodID string
	PromoCode       string
	Currency        string
	// ExpectedTotal is the snapshot total the buyer saw. Gateways reject the
	// order when their own computation disagrees.
	ExpectedTotal decimal.NullDecimal
}

// OrderResponse is the gateway's answer. A success without an OrderID is
// treated as ambiguous.
type OrderResponse struct {
	OrderID string
	Status  OrderStatus
	Reason  string
}

// Gateway settles orders. Any returned error maps the attempt to failure.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
}

// RejectedError is a gateway error carrying a reason fit to show the buyer.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return "order rejected: " + e.Reason + ": " + e.Err.Error()
	}
	return "order rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return e.Err }

// FailureMessage picks the most specific buyer-facing message for err.
func FailureMessage(err error) string {
	var rej *RejectedError
	if errors.As(err, &rej) && rej.Reason != "" {
		return rej.Reason
	}
	return MsgPaymentFailed
}
