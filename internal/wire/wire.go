// Package wire holds the JSON representation of checkout types shared by the
// HTTP API, the HTTP gateway client and the checkout CLI.
//
// Monetary amounts are written as strings with the currency's fixed number of
// decimals so no float conversion happens on either side. Decoders accept
// amounts given either as strings or as JSON numbers.
package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/listing"
	"github.com/xenking/marketplace-checkout/internal/domain/money"
	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

// Error is the error body returned by the API.
type Error struct {
	Code    int
	Message string
}

// QuoteRequest asks for a breakdown of items with an optional promo code.
type QuoteRequest struct {
	Items     []pricing.Item
	PromoCode string
}

// PromoRequest asks whether a code applies to a subtotal.
type PromoRequest struct {
	Code     string
	Subtotal decimal.Decimal
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	default:
		return decimal.Decimal{}, errors.Errorf("amount: unexpected %s", d.Next())
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "amount %q", raw)
	}
	return v, nil
}

func decodeOptString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// --- Items ---

func encodeItem(e *jx.Encoder, it pricing.Item) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(it.ID)
	e.FieldStart("kind")
	e.Str(string(it.Kind))
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("unitPrice")
	e.Str(it.UnitPrice.String())
	e.FieldStart("currency")
	e.Str(it.Currency)
	e.ObjEnd()
}

func encodeItems(e *jx.Encoder, items []pricing.Item) {
	e.ArrStart()
	for _, it := range items {
		encodeItem(e, it)
	}
	e.ArrEnd()
}

func decodeItem(d *jx.Decoder) (pricing.Item, error) {
	it := pricing.Item{Kind: pricing.KindProduct}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = d.Str()
		case "kind":
			var kind string
			if kind, err = decodeOptString(d); err == nil && kind != "" {
				it.Kind = pricing.ItemKind(kind)
			}
		case "quantity":
			it.Quantity, err = d.Int()
		case "unitPrice":
			it.UnitPrice, err = decodeDecimal(d)
		case "currency":
			it.Currency, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return it, err
}

func decodeItemsArr(d *jx.Decoder) ([]pricing.Item, error) {
	items := []pricing.Item{}
	err := d.Arr(func(d *jx.Decoder) error {
		it, err := decodeItem(d)
		if err != nil {
			return errors.Wrapf(err, "item %d", len(items))
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

// DecodeItems reads a cart: either a bare array of items or an object with
// an "items" field.
func DecodeItems(data []byte) ([]pricing.Item, error) {
	d := jx.DecodeBytes(data)
	switch d.Next() {
	case jx.Array:
		return decodeItemsArr(d)
	case jx.Object:
		var items []pricing.Item
		err := d.Obj(func(d *jx.Decoder, key string) error {
			if key != "items" {
				return d.Skip()
			}
			var err error
			items, err = decodeItemsArr(d)
			return err
		})
		return items, err
	default:
		return nil, errors.New("cart must be an array or an object with items")
	}
}

// EncodeItems writes items as a JSON array.
func EncodeItems(items []pricing.Item) []byte {
	var e jx.Encoder
	encodeItems(&e, items)
	return e.Bytes()
}

// --- Payer ---

func encodePayer(e *jx.Encoder, p checkout.PayerDetails) {
	e.ObjStart()
	for _, f := range payerFields(&p) {
		if *f.v == "" {
			continue
		}
		e.FieldStart(f.name)
		e.Str(*f.v)
	}
	e.ObjEnd()
}

type payerField struct {
	name string
	v    *string
}

func payerFields(p *checkout.PayerDetails) []payerField {
	return []payerField{
		{"fullName", &p.FullName},
		{"email", &p.Email},
		{"phone", &p.Phone},
		{"addressLine1", &p.AddressLine1},
		{"addressLine2", &p.AddressLine2},
		{"city", &p.City},
		{"state", &p.State},
		{"postalCode", &p.PostalCode},
		{"country", &p.Country},
	}
}

func decodePayer(d *jx.Decoder) (checkout.PayerDetails, error) {
	var p checkout.PayerDetails
	fields := payerFields(&p)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		for _, f := range fields {
			if f.name == key {
				v, err := decodeOptString(d)
				*f.v = v
				return errors.Wrap(err, key)
			}
		}
		return d.Skip()
	})
	return p, err
}

// EncodePayer writes payer details, omitting blank fields.
func EncodePayer(p checkout.PayerDetails) []byte {
	var e jx.Encoder
	encodePayer(&e, p)
	return e.Bytes()
}

// DecodePayer reads payer details.
func DecodePayer(data []byte) (checkout.PayerDetails, error) {
	return decodePayer(jx.DecodeBytes(data))
}

// --- Orders ---

// EncodeOrderRequest writes the body of POST /api/orders. The idempotency
// key travels in a header and is not part of the body.
func EncodeOrderRequest(req checkout.OrderRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	encodeItems(&e, req.Items)
	e.FieldStart("payer")
	encodePayer(&e, req.Payer)
	if req.PaymentMethodID != "" {
		e.FieldStart("paymentMethodId")
		e.Str(req.PaymentMethodID)
	}
	if req.PromoCode != "" {
		e.FieldStart("promoCode")
		e.Str(req.PromoCode)
	}
	if req.Currency != "" {
		e.FieldStart("currency")
		e.Str(req.Currency)
	}
	if req.ExpectedTotal.Valid {
		e.FieldStart("expectedTotal")
		e.Str(req.ExpectedTotal.Decimal.String())
	}
	e.ObjEnd()
	return e.Bytes()
}

// DecodeOrderRequest reads the body of POST /api/orders.
func DecodeOrderRequest(data []byte) (checkout.OrderRequest, error) {
	var req checkout.OrderRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			req.Items, err = decodeItemsArr(d)
		case "payer":
			req.Payer, err = decodePayer(d)
		case "paymentMethodId":
			req.PaymentMethodID, err = decodeOptString(d)
		case "promoCode":
			req.PromoCode, err = decodeOptString(d)
		case "currency":
			req.Currency, err = decodeOptString(d)
		case "expectedTotal":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v decimal.Decimal
			if v, err = decodeDecimal(d); err == nil {
				req.ExpectedTotal = decimal.NewNullDecimal(v)
			}
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return req, err
}

// EncodeOrderResponse writes an order outcome.
func EncodeOrderResponse(resp checkout.OrderResponse) []byte {
	var e jx.Encoder
	e.ObjStart()
	if resp.OrderID != "" {
		e.FieldStart("orderId")
		e.Str(resp.OrderID)
	}
	e.FieldStart("status")
	e.Str(string(resp.Status))
	if resp.Reason != "" {
		e.FieldStart("reason")
		e.Str(resp.Reason)
	}
	e.ObjEnd()
	return e.Bytes()
}

// DecodeOrderResponse reads an order outcome.
func DecodeOrderResponse(data []byte) (checkout.OrderResponse, error) {
	var resp checkout.OrderResponse
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			resp.OrderID, err = decodeOptString(d)
		case "status":
			var s string
			s, err = d.Str()
			resp.Status = checkout.OrderStatus(s)
		case "reason":
			resp.Reason, err = decodeOptString(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return resp, err
}

// --- Breakdown ---

func encodeAmount(e *jx.Encoder, cur money.Currency, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Str(cur.Format(v))
}

// EncodeBreakdown writes b, or null for an empty cart.
func EncodeBreakdown(b *pricing.Breakdown) []byte {
	var e jx.Encoder
	encodeBreakdown(&e, b)
	return e.Bytes()
}

func encodeBreakdown(e *jx.Encoder, b *pricing.Breakdown) {
	if b == nil {
		e.Null()
		return
	}
	cur := b.Currency
	e.ObjStart()
	e.FieldStart("currency")
	e.Str(cur.Code())
	e.FieldStart("lines")
	encodeLines(e, cur, b.Lines)
	encodeAmount(e, cur, "subtotal", b.Subtotal)
	encodeAmount(e, cur, "discount", b.Discount)
	encodeAmount(e, cur, "taxableAmount", b.TaxableAmount)
	encodeAmount(e, cur, "tax", b.Tax)
	encodeAmount(e, cur, "platformFee", b.PlatformFee)
	encodeAmount(e, cur, "commissionPreview", b.CommissionPreview)
	encodeAmount(e, cur, "total", b.Total)
	e.ObjEnd()
}

// DecodeBreakdown reads a breakdown written by EncodeBreakdown. A null body
// yields a nil breakdown.
func DecodeBreakdown(data []byte) (*pricing.Breakdown, error) {
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return nil, d.Null()
	}

	var b pricing.Breakdown
	amounts := map[string]*decimal.Decimal{
		"subtotal":          &b.Subtotal,
		"discount":          &b.Discount,
		"taxableAmount":     &b.TaxableAmount,
		"tax":               &b.Tax,
		"platformFee":       &b.PlatformFee,
		"commissionPreview": &b.CommissionPreview,
		"total":             &b.Total,
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if dst, ok := amounts[key]; ok {
			v, err := decodeDecimal(d)
			*dst = v
			return errors.Wrap(err, key)
		}
		switch key {
		case "currency":
			code, err := d.Str()
			if err != nil {
				return errors.Wrap(err, key)
			}
			b.Currency, err = money.ParseCurrency(code)
			return err
		case "lines":
			lines, err := decodeLinesArr(d)
			b.Lines = lines
			return errors.Wrap(err, key)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func encodeLines(e *jx.Encoder, cur money.Currency, lines []pricing.Line) {
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("itemId")
		e.Str(l.ItemID)
		e.FieldStart("kind")
		e.Str(string(l.Kind))
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		encodeAmount(e, cur, "unitPrice", l.UnitPrice)
		encodeAmount(e, cur, "lineTotal", l.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
}

// EncodeLines writes breakdown lines as a JSON array.
func EncodeLines(cur money.Currency, lines []pricing.Line) []byte {
	var e jx.Encoder
	encodeLines(&e, cur, lines)
	return e.Bytes()
}

// DecodeLines reads lines written by EncodeLines.
func DecodeLines(data []byte) ([]pricing.Line, error) {
	return decodeLinesArr(jx.DecodeBytes(data))
}

func decodeLinesArr(d *jx.Decoder) ([]pricing.Line, error) {
	var lines []pricing.Line
	err := d.Arr(func(d *jx.Decoder) error {
		l, err := decodeLine(d)
		if err != nil {
			return errors.Wrapf(err, "line %d", len(lines))
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

func decodeLine(d *jx.Decoder) (pricing.Line, error) {
	var l pricing.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			l.ItemID, err = d.Str()
		case "kind":
			var s string
			s, err = d.Str()
			l.Kind = pricing.ItemKind(s)
		case "quantity":
			l.Quantity, err = d.Int()
		case "unitPrice":
			l.UnitPrice, err = decodeDecimal(d)
		case "lineTotal":
			l.LineTotal, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return l, err
}

// --- Quote ---

// DecodeQuoteRequest reads the body of POST /api/checkout/quote.
func DecodeQuoteRequest(data []byte) (QuoteRequest, error) {
	var req QuoteRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			req.Items, err = decodeItemsArr(d)
		case "promoCode":
			req.PromoCode, err = decodeOptString(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return req, err
}

// EncodeQuote writes a quote response: the breakdown and, when a code was
// supplied, the promo result.
func EncodeQuote(b *pricing.Breakdown, res *promo.Result) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("breakdown")
	encodeBreakdown(&e, b)
	if res != nil {
		e.FieldStart("promo")
		encodePromoResult(&e, *res)
	}
	e.ObjEnd()
	return e.Bytes()
}

// --- Promo ---

// EncodePromoRequest writes the body of POST /api/promo/validate.
func EncodePromoRequest(req PromoRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(req.Code)
	e.FieldStart("subtotal")
	e.Str(req.Subtotal.String())
	e.ObjEnd()
	return e.Bytes()
}

// DecodePromoRequest reads the body of POST /api/promo/validate.
func DecodePromoRequest(data []byte) (PromoRequest, error) {
	var req PromoRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = decodeOptString(d)
		case "subtotal":
			req.Subtotal, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return req, err
}

func encodePromoResult(e *jx.Encoder, r promo.Result) {
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(r.Valid)
	e.FieldStart("code")
	e.Str(r.Code)
	if r.DiscountAmount != nil {
		e.FieldStart("discountAmount")
		e.Str(r.DiscountAmount.String())
	}
	if r.DiscountPercent != nil {
		e.FieldStart("discountPercent")
		e.Str(r.DiscountPercent.String())
	}
	if r.MaxDiscount.IsPositive() {
		e.FieldStart("maxDiscount")
		e.Str(r.MaxDiscount.String())
	}
	if r.MinSubtotal.IsPositive() {
		e.FieldStart("minSubtotal")
		e.Str(r.MinSubtotal.String())
	}
	if r.Description != "" {
		e.FieldStart("description")
		e.Str(r.Description)
	}
	if r.Message != "" {
		e.FieldStart("message")
		e.Str(r.Message)
	}
	e.ObjEnd()
}

// EncodePromoResult writes a validation result.
func EncodePromoResult(r promo.Result) []byte {
	var e jx.Encoder
	encodePromoResult(&e, r)
	return e.Bytes()
}

// DecodePromoResult reads a validation result.
func DecodePromoResult(data []byte) (promo.Result, error) {
	var r promo.Result
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "valid":
			r.Valid, err = d.Bool()
		case "code":
			r.Code, err = decodeOptString(d)
		case "discountAmount":
			var v decimal.Decimal
			if v, err = decodeDecimal(d); err == nil {
				r.DiscountAmount = &v
			}
		case "discountPercent":
			var v decimal.Decimal
			if v, err = decodeDecimal(d); err == nil {
				r.DiscountPercent = &v
			}
		case "maxDiscount":
			r.MaxDiscount, err = decodeDecimal(d)
		case "minSubtotal":
			r.MinSubtotal, err = decodeDecimal(d)
		case "description":
			r.Description, err = decodeOptString(d)
		case "message":
			r.Message, err = decodeOptString(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return r, err
}

// --- Listings ---

// EncodeListings writes the catalog.
func EncodeListings(ls []listing.Listing) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range ls {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ID)
		e.FieldStart("sellerId")
		e.Str(l.SellerID)
		e.FieldStart("kind")
		e.Str(string(l.Kind))
		e.FieldStart("title")
		e.Str(l.Title)
		e.FieldStart("price")
		e.Str(l.Price.String())
		e.FieldStart("currency")
		e.Str(l.Currency)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

// DecodeListings reads a catalog array. Listings are active unless the
// input says otherwise.
func DecodeListings(data []byte) ([]listing.Listing, error) {
	var out []listing.Listing
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		l := listing.Listing{Kind: pricing.KindProduct, Active: true}
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				l.ID, err = d.Str()
			case "sellerId":
				l.SellerID, err = decodeOptString(d)
			case "kind":
				var s string
				if s, err = d.Str(); err == nil && s != "" {
					l.Kind = pricing.ItemKind(s)
				}
			case "title":
				l.Title, err = decodeOptString(d)
			case "price":
				l.Price, err = decodeDecimal(d)
			case "currency":
				l.Currency, err = d.Str()
			case "active":
				l.Active, err = d.Bool()
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		})
		if err != nil {
			return errors.Wrapf(err, "listing %d", len(out))
		}
		out = append(out, l)
		return nil
	})
	return out, err
}

// --- Errors ---

// EncodeError writes an API error body.
func EncodeError(code int, message string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	return e.Bytes()
}

// DecodeError reads an API error body.
func DecodeError(data []byte) (Error, error) {
	var out Error
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			out.Code, err = d.Int()
		case "message":
			out.Message, err = decodeOptString(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return out, err
}
