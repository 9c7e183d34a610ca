package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/coursedesk/payment-service/internal/models"
)

// Envelope is the raw inbound callback body: opaque ciphertext plus checksum.
// It lives only for the duration of one request.
type Envelope struct {
	TradeInfo string
	TradeSha  string
}

// ParseEnvelope extracts TradeInfo and TradeSha from a form-encoded body.
func ParseEnvelope(rawBody string) (Envelope, error) {
	values, err := url.ParseQuery(rawBody)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	env := Envelope{
		TradeInfo: values.Get("TradeInfo"),
		TradeSha:  values.Get("TradeSha"),
	}
	if env.TradeInfo == "" {
		return Envelope{}, fmt.Errorf("%w: missing TradeInfo", ErrMalformedRequest)
	}
	if env.TradeSha == "" {
		return Envelope{}, fmt.Errorf("%w: missing TradeSha", ErrMalformedRequest)
	}
	return env, nil
}

// rawTrade is a decrypted payload before normalization. The gateway has
// historically delivered three shapes: flat top-level fields, a nested Result
// object, and a Result field holding a JSON-encoded string. Top carries the
// top-level fields either way; Result is nil for the flat shape.
type rawTrade struct {
	Top    map[string]any
	Result map[string]any
}

// NormalizeDecrypted turns a decrypted payload into a VerifiedTrade.
// Strict JSON is tried first, then query-string parsing.
func NormalizeDecrypted(plaintext string) (models.VerifiedTrade, error) {
	raw, err := parseRawTrade(plaintext)
	if err != nil {
		return models.VerifiedTrade{}, err
	}

	trade := models.VerifiedTrade{
		Status:          normalizeStatus(raw.str("Status")),
		MerchantOrderNo: raw.str("MerchantOrderNo"),
		GatewayTradeID:  raw.str("TradeNo"),
		PaymentMethod:   raw.str("PaymentType"),
		RawMessage:      raw.str("Message"),
	}
	trade.AmountRaw = raw.str("Amt")
	trade.Amount = parseAmount(trade.AmountRaw)
	return trade, nil
}

func parseRawTrade(plaintext string) (rawTrade, error) {
	top := map[string]any{}
	if err := json.Unmarshal([]byte(plaintext), &top); err != nil {
		// Older payloads arrive as a query string instead of JSON.
		values, qerr := url.ParseQuery(plaintext)
		if qerr != nil || len(values) == 0 {
			return rawTrade{}, fmt.Errorf("%w: not JSON (%v) and not a query string", ErrDecode, err)
		}
		top = map[string]any{}
		for k := range values {
			top[k] = values.Get(k)
		}
	}

	raw := rawTrade{Top: top}
	switch result := top["Result"].(type) {
	case string:
		// Result delivered as a JSON-encoded string: parse it in place.
		nested := map[string]any{}
		if err := json.Unmarshal([]byte(result), &nested); err == nil {
			raw.Result = nested
		}
	case map[string]any:
		raw.Result = result
	}
	return raw, nil
}

// str resolves a field by name, checking the nested Result first and falling
// back to the top level. Callers must never assume one payload shape.
func (r rawTrade) str(key string) string {
	if r.Result != nil {
		if v, ok := r.Result[key]; ok {
			return anyToString(v)
		}
	}
	if v, ok := r.Top[key]; ok {
		return anyToString(v)
	}
	return ""
}

func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func normalizeStatus(s string) models.TradeStatus {
	switch {
	case s == "":
		return models.TradeStatusUnknown
	case strings.EqualFold(s, "SUCCESS"):
		return models.TradeStatusSuccess
	default:
		return models.TradeStatusFailure
	}
}

// parseAmount returns NaN for anything that is not a finite number; the
// reconciliation engine treats NaN as a permanent invalid-amount rejection.
func parseAmount(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return math.NaN()
	}
	amt, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(amt, 0) {
		return math.NaN()
	}
	return amt
}
