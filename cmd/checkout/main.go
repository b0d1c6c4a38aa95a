// Command checkout drives one checkout session from a cart file against the
// checkout API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
	"github.com/xenking/marketplace-checkout/internal/gateway/httpgateway"
	"github.com/xenking/marketplace-checkout/internal/wire"
)

type options struct {
	apiURL        string
	apiKey        string
	cartFile      string
	payerFile     string
	promoCode     string
	paymentMethod string
	acceptPolicy  bool
	retries       int
	taxRate       string
	feeRate       string
	commission    string
}

// fileCart reads the cart file on every call so a reload picks up edits.
type fileCart string

func (f fileCart) CheckoutItems(context.Context) ([]pricing.Item, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	return wire.DecodeItems(data)
}

func main() {
	var opts options
	flag.StringVar(&opts.apiURL, "api", "http://localhost:8080/api", "checkout API base URL")
	flag.StringVar(&opts.apiKey, "api-key", os.Getenv("CHECKOUT_API_KEY"), "API key (or CHECKOUT_API_KEY env)")
	flag.StringVar(&opts.cartFile, "cart", "cart.json", "path to cart items JSON")
	flag.StringVar(&opts.payerFile, "payer", "payer.json", "path to payer details JSON")
	flag.StringVar(&opts.promoCode, "promo", "", "promo code to apply")
	flag.StringVar(&opts.paymentMethod, "payment-method", "", "payment method token")
	flag.BoolVar(&opts.acceptPolicy, "accept-policy", false, "accept the cancellation and refund policy")
	flag.IntVar(&opts.retries, "retries", 0, "retries after a failed attempt")
	flag.StringVar(&opts.taxRate, "tax-rate", "0.08", "tax rate used for the local quote")
	flag.StringVar(&opts.feeRate, "platform-fee-rate", "0.029", "platform fee rate used for the local quote")
	flag.StringVar(&opts.commission, "commission-rate", "0.05", "commission rate used for the local quote")
	flag.Parse()

	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		return run(ctx, lg, m, opts)
	})
}

func run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, opts options) error {
	rates, err := pricing.ParseRates(opts.taxRate, opts.feeRate, opts.commission)
	if err != nil {
		return err
	}
	payerData, err := os.ReadFile(opts.payerFile)
	if err != nil {
		return errors.Wrap(err, "read payer")
	}
	payer, err := wire.DecodePayer(payerData)
	if err != nil {
		return errors.Wrap(err, "decode payer")
	}
	metrics, err := checkout.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "checkout metrics")
	}

	client := httpgateway.NewClient(opts.apiURL, httpgateway.Options{
		APIKey:         opts.apiKey,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	s, err := checkout.LoadSession(ctx, fileCart(opts.cartFile), checkout.Deps{
		Gateway:        client,
		Promos:         client,
		Calculator:     pricing.NewCalculator(rates),
		Metrics:        metrics,
		TracerProvider: m.TracerProvider(),
		Logger:         lg,
		Observer: func(tr checkout.Transition) {
			lg.Info("State changed",
				zap.Stringer("from", tr.From),
				zap.Stringer("to", tr.To),
				zap.String("event", string(tr.Event)),
				zap.Uint64("generation", tr.Generation),
			)
		},
	})
	if err != nil {
		return errors.Wrap(err, "start session")
	}

	if opts.promoCode != "" {
		res, err := s.ApplyPromo(ctx, opts.promoCode)
		if err != nil {
			return errors.Wrap(err, "apply promo")
		}
		if !res.Valid {
			lg.Warn("Promo code rejected", zap.String("code", res.Code), zap.String("message", res.Message))
		}
	}
	s.SetPayer(payer)
	s.SetPaymentMethod(opts.paymentMethod)
	s.AcceptPolicy(opts.acceptPolicy)

	if b := s.Breakdown(); b != nil {
		fmt.Printf("%s\n", wire.EncodeBreakdown(b))
	}

	if err := s.Submit(ctx); err != nil {
		return err
	}
	for attempt := 0; s.State() == checkout.StateFailure && attempt < opts.retries; attempt++ {
		lg.Warn("Attempt failed, retrying",
			zap.String("reason", s.ErrorMessage()),
			zap.Int("retry", attempt+1),
		)
		if err := s.Retry(ctx); err != nil {
			return err
		}
	}

	if s.State() != checkout.StateSuccess {
		return errors.Errorf("checkout failed: %s", s.ErrorMessage())
	}
	lg.Info("Order placed", zap.String("order_id", s.OrderID()))
	return nil
}
