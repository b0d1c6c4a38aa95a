package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
)

func TestCanSubmit(t *testing.T) {
	tests := []struct {
		policy, payer bool
		want          bool
	}{
		{policy: false, payer: false, want: false},
		{policy: true, payer: false, want: false},
		{policy: false, payer: true, want: false},
		{policy: true, payer: true, want: true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanSubmit(tt.policy, tt.payer), "policy=%v payer=%v", tt.policy, tt.payer)
	}
}

func TestCheckSubmit(t *testing.T) {
	calc := pricing.NewCalculator(pricing.DefaultRates())
	b, err := calc.Compute([]pricing.Item{item("p1", "10.00", 1)}, decimal.Zero)
	require.NoError(t, err)

	t.Run("all guards pass", func(t *testing.T) {
		assert.NoError(t, CheckSubmit(true, completePayer(), b))
	})

	t.Run("policy only", func(t *testing.T) {
		err := CheckSubmit(false, completePayer(), b)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Len(t, verr.Problems, 1)
		assert.Equal(t, FieldError{Field: FieldPolicy, Message: MsgPolicyNotAccepted}, verr.Problems[0])
	})

	t.Run("everything missing", func(t *testing.T) {
		err := CheckSubmit(false, PayerDetails{}, nil)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.True(t, verr.Has(FieldPolicy))
		assert.True(t, verr.Has(FieldPayer))
		assert.True(t, verr.Has(FieldCart))
		assert.Contains(t, verr.Error(), MsgPolicyNotAccepted)
		assert.Contains(t, verr.Error(), MsgEmptyCart)
	})
}

func TestPayerDetails_Validate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(p *PayerDetails)
		wantFields []string
	}{
		{name: "complete", mutate: func(*PayerDetails) {}},
		{name: "optional fields may be blank", mutate: func(p *PayerDetails) {
			p.Phone, p.AddressLine2, p.State = "", "", ""
		}},
		{name: "malformed email", mutate: func(p *PayerDetails) { p.Email = "ada at example" }, wantFields: []string{"payer.email"}},
		{name: "blank postal code", mutate: func(p *PayerDetails) { p.PostalCode = "   " }, wantFields: []string{"payer.postalCode"}},
		{name: "missing country", mutate: func(p *PayerDetails) { p.Country = "" }, wantFields: []string{"payer.country"}},
		{name: "missing name and city", mutate: func(p *PayerDetails) {
			p.FullName, p.City = "", ""
		}, wantFields: []string{"payer.fullName", "payer.city"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := completePayer()
			tt.mutate(&p)

			err := p.Validate()
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				assert.True(t, p.Complete())
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.False(t, p.Complete())
			assert.Len(t, verr.Problems, len(tt.wantFields))
			for _, f := range tt.wantFields {
				assert.True(t, verr.Has(f), "expected problem for %s, got %+v", f, verr.Problems)
			}
		})
	}
}

func TestPayerDetails_EmailMessage(t *testing.T) {
	p := completePayer()
	p.Email = "nope"

	var verr *ValidationError
	require.ErrorAs(t, p.Validate(), &verr)
	assert.Equal(t, "Please enter a valid email address", verr.Problems[0].Message)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, MsgPaymentFailed, FailureMessage(assert.AnError))
	assert.Equal(t, MsgPaymentFailed, FailureMessage(&RejectedError{}))
	assert.Equal(t, "Out of stock", FailureMessage(&RejectedError{Reason: "Out of stock", Err: assert.AnError}))
}

func TestState_IsTerminal(t *testing.T) {
	assert.False(t, StateIdle.IsTerminal())
	assert.False(t, StateProcessing.IsTerminal())
	assert.True(t, StateSuccess.IsTerminal())
	assert.True(t, StateFailure.IsTerminal())
}
