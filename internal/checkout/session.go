// Package checkout drives a single buyer checkout: it keeps the live price
// breakdown current, applies promo codes, gates submission on the refund
// policy and payer details, and settles the order through a Gateway.
package checkout

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

// SubmitTimeout bounds one gateway call. Expiry resolves the attempt to
// failure.
const SubmitTimeout = 30 * time.Second

// PromoValidator checks a promo code against a subtotal.
type PromoValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Result, error)
}

// Deps are the collaborators of a Session. Only Gateway is required.
type Deps struct {
	Gateway        Gateway
	Promos         PromoValidator
	Calculator     *pricing.Calculator
	Metrics        *Metrics
	TracerProvider trace.TracerProvider
	Logger         *zap.Logger
	Now            func() time.Time
	NewKey         func() string
	Observer       func(Transition)
}

func (d *Deps) setDefaults() {
	if d.Calculator == nil {
		d.Calculator = pricing.NewCalculator(pricing.DefaultRates())
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics()
	}
	if d.TracerProvider == nil {
		d.TracerProvider = noop.NewTracerProvider()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewKey == nil {
		d.NewKey = uuid.NewString
	}
}

// Session is one buyer's checkout. Each checkout constructs its own Session;
// all state is private and changed only through its methods, which are safe
// for concurrent use.
type Session struct {
	deps    Deps
	tracer  trace.Tracer
	lg      *zap.Logger
	timeout time.Duration

	mu             sync.Mutex
	items          []pricing.Item
	promo          *promo.Result
	payer          PayerDetails
	policyAccepted bool
	paymentMethod  string
	breakdown      *pricing.Breakdown

	state      State
	generation uint64
	cancel     context.CancelFunc
	snapshot   *pricing.Breakdown
	order      *Order
	errMsg     string
}

// NewSession prices items and returns an idle session.
func NewSession(deps Deps, items []pricing.Item) (*Session, error) {
	if deps.Gateway == nil {
		return nil, ErrMissingGateway
	}
	deps.setDefaults()

	s := &Session{
		deps:    deps,
		tracer:  deps.TracerProvider.Tracer(instrumentationName),
		lg:      deps.Logger.Named("checkout"),
		timeout: SubmitTimeout,
		state:   StateIdle,
	}
	if err := s.UpdateCart(items); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSession builds a session from the cart supplier's current items.
func LoadSession(ctx context.Context, cart CartSupplier, deps Deps) (*Session, error) {
	items, err := cart.CheckoutItems(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return NewSession(deps, items)
}

// UpdateCart replaces the cart and recomputes the breakdown. An invalid cart
// (mixed currencies, bad quantity) is refused and the previous cart kept. An
// applied promo stays applied but contributes no discount while the subtotal
// is below its minimum.
func (s *Session) UpdateCart(items []pricing.Item) error {
	items = slices.Clone(items)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.price(items, s.promo)
	if err != nil {
		return errors.Wrap(err, "price cart")
	}
	if s.promo != nil && b != nil && !s.promo.Applies(b.Subtotal) {
		s.lg.Debug("Applied promo no longer qualifies",
			zap.String("code", s.promo.Code),
			zap.Stringer("subtotal", b.Subtotal),
			zap.Stringer("min_subtotal", s.promo.MinSubtotal),
		)
	}
	s.items = items
	s.breakdown = b
	return nil
}

// ReloadCart fetches the items again from cart.
func (s *Session) ReloadCart(ctx context.Context, cart CartSupplier) error {
	items, err := cart.CheckoutItems(ctx)
	if err != nil {
		return errors.Wrap(err, "load cart")
	}
	return s.UpdateCart(items)
}

// SetPayer stores the payer details.
func (s *Session) SetPayer(p PayerDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payer = p.Normalized()
}

// AcceptPolicy records the cancellation and refund policy checkbox.
func (s *Session) AcceptPolicy(accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policyAccepted = accepted
}

// SetPaymentMethod stores the opaque payment method token.
func (s *Session) SetPaymentMethod(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentMethod = id
}

// ApplyPromo validates code against the current subtotal. A valid result
// replaces any applied promo and reprices the cart; a rejection leaves the
// cart and state machine untouched and is returned as a normal result. If
// the cart changed during validation the promo is priced against the new
// cart and yields no discount when that cart is below its minimum.
func (s *Session) ApplyPromo(ctx context.Context, code string) (promo.Result, error) {
	if s.deps.Promos == nil {
		return promo.Result{}, ErrPromosUnavailable
	}

	s.mu.Lock()
	b := s.breakdown
	s.mu.Unlock()
	if b == nil {
		return promo.Rejected(promo.Normalize(code), MsgEmptyCart), nil
	}

	res, err := s.deps.Promos.Validate(ctx, code, b.Subtotal)
	if err != nil {
		return promo.Result{}, errors.Wrap(err, "validate promo")
	}
	if !res.Valid {
		s.lg.Debug("Promo rejected", zap.String("code", res.Code), zap.String("reason", res.Message))
		return res, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.price(s.items, &res)
	if err != nil {
		return promo.Result{}, errors.Wrap(err, "price cart")
	}
	s.promo = &res
	s.breakdown = next
	return res, nil
}

// RemovePromo drops the applied promo and reprices the cart.
func (s *Session) RemovePromo() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.promo == nil {
		return
	}
	s.promo = nil
	if b, err := s.price(s.items, nil); err == nil {
		s.breakdown = b
	}
}

// price must be called with s.mu held or before the session is shared.
func (s *Session) price(items []pricing.Item, applied *promo.Result) (*pricing.Breakdown, error) {
	base, err := s.deps.Calculator.Compute(items, decimal.Zero)
	if err != nil || base == nil || applied == nil {
		return base, err
	}
	return s.deps.Calculator.Compute(items, applied.Resolve(base.Subtotal, base.Currency))
}

// Submit starts an attempt from idle and blocks until it resolves, times out
// or is abandoned by Reset. Guard failures return a *ValidationError and
// leave the session idle. A Submit while an attempt is in flight is ignored.
// Gateway failures are reported through State and ErrorMessage, not the
// returned error.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateProcessing:
		gen := s.generation
		s.mu.Unlock()
		s.lg.Debug("Submit ignored, attempt in flight", zap.Uint64("generation", gen))
		return nil
	case StateSuccess, StateFailure:
		state := s.state
		s.mu.Unlock()
		return errors.Wrapf(ErrInvalidTransition, "submit from %s", state)
	}
	if err := CheckSubmit(s.policyAccepted, s.payer, s.breakdown); err != nil {
		s.mu.Unlock()
		s.deps.Metrics.rejected(ctx)
		return err
	}
	att, tr := s.beginLocked(ctx, EventSubmit)
	s.mu.Unlock()

	s.notify(ctx, tr)
	s.run(att)
	return nil
}

// Retry starts a new attempt after a failure, snapshotting the current
// breakdown. It is ignored while an attempt is in flight.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateProcessing:
		s.mu.Unlock()
		return nil
	case StateFailure:
	default:
		state := s.state
		s.mu.Unlock()
		return errors.Wrapf(ErrInvalidTransition, "retry from %s", state)
	}
	if err := CheckSubmit(s.policyAccepted, s.payer, s.breakdown); err != nil {
		s.mu.Unlock()
		s.deps.Metrics.rejected(ctx)
		return err
	}
	att, tr := s.beginLocked(ctx, EventRetry)
	s.mu.Unlock()

	s.notify(ctx, tr)
	s.run(att)
	return nil
}

// Reset returns the session to idle, aborting any in-flight attempt. A
// response arriving for the aborted attempt is discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.order = nil
	s.errMsg = ""
	s.snapshot = nil
	tr := s.transitionLocked(StateIdle, EventReset)
	s.mu.Unlock()

	s.notify(context.Background(), tr)
}

type attempt struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	req        OrderRequest
	snapshot   *pricing.Breakdown
}

func (s *Session) beginLocked(ctx context.Context, ev Event) (attempt, Transition) {
	s.generation++
	s.snapshot = s.breakdown
	s.order = nil
	s.errMsg = ""

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	s.cancel = cancel

	req := OrderRequest{
		IdempotencyKey:  s.deps.NewKey(),
		Items:           slices.Clone(s.items),
		Payer:           s.payer,
		PaymentMethodID: s.paymentMethod,
		Currency:        s.snapshot.Currency.Code(),
		ExpectedTotal:   decimal.NewNullDecimal(s.snapshot.Total),
	}
	if s.promo != nil && s.promo.Applies(s.snapshot.Subtotal) {
		req.PromoCode = s.promo.Code
	}

	att := attempt{
		ctx:        attemptCtx,
		cancel:     cancel,
		generation: s.generation,
		req:        req,
		snapshot:   s.snapshot,
	}
	return att, s.transitionLocked(StateProcessing, ev)
}

type gatewayResult struct {
	resp OrderResponse
	err  error
}

func (s *Session) run(att attempt) {
	defer att.cancel()

	ctx, span := s.tracer.Start(att.ctx, "checkout.SubmitOrder", trace.WithAttributes(
		attribute.String("checkout.idempotency_key", att.req.IdempotencyKey),
		attribute.Int64("checkout.generation", int64(att.generation)),
		attribute.String("checkout.total", att.snapshot.Total.String()),
	))
	defer span.End()

	lg := s.lg.With(
		zap.Uint64("generation", att.generation),
		zap.String("idempotency_key", att.req.IdempotencyKey),
	)

	start := s.deps.Now()
	done := make(chan gatewayResult, 1)
	go func() {
		resp, err := s.deps.Gateway.SubmitOrder(ctx, att.req)
		done <- gatewayResult{resp: resp, err: err}
	}()

	var res gatewayResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	took := s.deps.Now().Sub(start)

	s.mu.Lock()
	if att.generation != s.generation || s.state != StateProcessing {
		s.mu.Unlock()
		lg.Debug("Discarding gateway response for abandoned attempt")
		s.deps.Metrics.attempt(ctx, "discarded", took)
		span.SetStatus(codes.Error, "abandoned")
		return
	}

	order := s.resolve(att, res)
	s.order = order
	s.cancel = nil
	var tr Transition
	if order.Status == StatusSuccess {
		tr = s.transitionLocked(StateSuccess, EventSuccess)
	} else {
		s.errMsg = order.Reason
		tr = s.transitionLocked(StateFailure, EventFailure)
	}
	s.mu.Unlock()

	s.deps.Metrics.attempt(ctx, string(order.Status), took)
	if order.Status == StatusSuccess {
		lg.Info("Order placed", zap.String("order_id", order.ID), zap.Duration("took", took))
	} else {
		if res.err != nil {
			span.RecordError(res.err)
		}
		span.SetStatus(codes.Error, order.Reason)
		lg.Warn("Order attempt failed",
			zap.String("reason", order.Reason),
			zap.Error(res.err),
			zap.Duration("took", took),
		)
	}
	s.notify(ctx, tr)
}

// resolve maps a gateway outcome to an Order. Errors, explicit failures and
// ambiguous successes all become failures.
func (s *Session) resolve(att attempt, res gatewayResult) *Order {
	o := &Order{
		Status:         StatusFailure,
		Breakdown:      att.snapshot,
		IdempotencyKey: att.req.IdempotencyKey,
		CreatedAt:      s.deps.Now(),
	}

	switch {
	case res.err != nil:
		o.Reason = FailureMessage(res.err)
	case res.resp.Status == StatusSuccess && res.resp.OrderID != "":
		o.Status = StatusSuccess
		o.ID = res.resp.OrderID
	case res.resp.Status == StatusFailure && res.resp.Reason != "":
		o.Reason = res.resp.Reason
	default:
		o.Reason = MsgPaymentFailed
	}
	return o
}

func (s *Session) transitionLocked(to State, ev Event) Transition {
	tr := Transition{
		From:       s.state,
		To:         to,
		Event:      ev,
		Generation: s.generation,
		At:         s.deps.Now(),
	}
	s.state = to
	return tr
}

func (s *Session) notify(ctx context.Context, tr Transition) {
	s.lg.Debug("Checkout transition",
		zap.Stringer("from", tr.From),
		zap.Stringer("to", tr.To),
		zap.String("event", string(tr.Event)),
		zap.Uint64("generation", tr.Generation),
	)
	s.deps.Metrics.transition(ctx, tr)
	if s.deps.Observer != nil {
		s.deps.Observer(tr)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Breakdown returns a copy of the live breakdown, nil for an empty cart.
func (s *Session) Breakdown() *pricing.Breakdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakdown.Clone()
}

// Snapshot returns a copy of the breakdown captured by the latest attempt.
func (s *Session) Snapshot() *pricing.Breakdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Promo returns the applied promo, if any.
func (s *Session) Promo() (promo.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promo == nil {
		return promo.Result{}, false
	}
	return *s.promo, true
}

// PromoMessage explains why an applied promo currently gives no discount.
// It is empty when no promo is applied or the promo qualifies.
func (s *Session) PromoMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promo == nil || s.breakdown == nil || s.promo.Applies(s.breakdown.Subtotal) {
		return ""
	}
	return promo.MsgBelowMinimum
}

// Order returns a copy of the outcome of the latest resolved attempt.
func (s *Session) Order() *Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Clone()
}

// OrderID is set only in StateSuccess.
func (s *Session) OrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSuccess || s.order == nil {
		return ""
	}
	return s.order.ID
}

// ErrorMessage is set only in StateFailure.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFailure {
		return ""
	}
	return s.errMsg
}

// CanSubmit reports whether the submit control should be enabled.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateIdle && s.breakdown != nil && CanSubmit(s.policyAccepted, s.payer.Complete())
}
