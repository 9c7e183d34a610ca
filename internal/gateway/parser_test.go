package gateway

import (
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coursedesk/payment-service/internal/models"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Envelope
		wantErr bool
	}{
		{
			name: "both fields present",
			body: "TradeInfo=abc123&TradeSha=DEF456",
			want: Envelope{TradeInfo: "abc123", TradeSha: "DEF456"},
		},
		{
			name: "extra fields are ignored",
			body: "Status=SUCCESS&TradeInfo=abc&TradeSha=def&MerchantID=MS1",
			want: Envelope{TradeInfo: "abc", TradeSha: "def"},
		},
		{name: "missing TradeInfo", body: "TradeSha=def", wantErr: true},
		{name: "missing TradeSha", body: "TradeInfo=abc", wantErr: true},
		{name: "empty body", body: "", wantErr: true},
		{name: "unparsable body", body: "a=%zz&TradeInfo=x&TradeSha=y", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope(tt.body)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedRequest)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, env)
		})
	}
}

// The gateway has shipped three payload shapes over time; all must normalize
// to the same trade.
func TestNormalizeDecrypted_ShapeEquivalence(t *testing.T) {
	payloads := map[string]string{
		"flat JSON":          `{"Status":"SUCCESS","MerchantOrderNo":"ORD17001","Amt":699,"TradeNo":"TN42","PaymentType":"CREDIT"}`,
		"nested Result":      `{"Status":"SUCCESS","Result":{"MerchantOrderNo":"ORD17001","Amt":699,"TradeNo":"TN42","PaymentType":"CREDIT"}}`,
		"Result JSON string": `{"Status":"SUCCESS","Result":"{\"MerchantOrderNo\":\"ORD17001\",\"Amt\":699,\"TradeNo\":\"TN42\",\"PaymentType\":\"CREDIT\"}"}`,
		"query string":       "Status=SUCCESS&MerchantOrderNo=ORD17001&Amt=699&TradeNo=TN42&PaymentType=CREDIT",
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			trade, err := NormalizeDecrypted(payload)
			require.NoError(t, err)
			require.Equal(t, models.TradeStatusSuccess, trade.Status)
			require.Equal(t, "ORD17001", trade.MerchantOrderNo)
			require.Equal(t, float64(699), trade.Amount)
			require.Equal(t, "TN42", trade.GatewayTradeID)
			require.Equal(t, "CREDIT", trade.PaymentMethod)
		})
	}
}

func TestNormalizeDecrypted_NestedResultWins(t *testing.T) {
	payload := `{"Status":"SUCCESS","MerchantOrderNo":"TOP","Amt":1,"Result":{"MerchantOrderNo":"NESTED","Amt":699}}`
	trade, err := NormalizeDecrypted(payload)
	require.NoError(t, err)
	require.Equal(t, "NESTED", trade.MerchantOrderNo)
	require.Equal(t, float64(699), trade.Amount)
}

func TestNormalizeDecrypted_Status(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    models.TradeStatus
	}{
		{name: "success", payload: `{"Status":"SUCCESS"}`, want: models.TradeStatusSuccess},
		{name: "success is case-insensitive", payload: `{"Status":"success"}`, want: models.TradeStatusSuccess},
		{name: "gateway error code", payload: `{"Status":"TRA10003","Message":"card declined"}`, want: models.TradeStatusFailure},
		{name: "missing status", payload: `{"MerchantOrderNo":"X"}`, want: models.TradeStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := NormalizeDecrypted(tt.payload)
			require.NoError(t, err)
			require.Equal(t, tt.want, trade.Status)
		})
	}
}

func TestNormalizeDecrypted_Amounts(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantNaN bool
		want    float64
	}{
		{name: "json number", payload: `{"Amt":699}`, want: 699},
		{name: "json string", payload: `{"Amt":"699.4"}`, want: 699.4},
		{name: "query string", payload: "Amt=701", want: 701},
		{name: "missing", payload: `{"Status":"SUCCESS"}`, wantNaN: true},
		{name: "non-numeric", payload: `{"Amt":"sixhundred"}`, wantNaN: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := NormalizeDecrypted(tt.payload)
			require.NoError(t, err)
			if tt.wantNaN {
				require.True(t, math.IsNaN(trade.Amount))
			} else {
				require.Equal(t, tt.want, trade.Amount)
			}
		})
	}
}

func TestNormalizeDecrypted_Undecodable(t *testing.T) {
	_, err := NormalizeDecrypted("%%%not-anything%%%")
	require.ErrorIs(t, err, ErrDecode)
}

func TestDecodeCallback(t *testing.T) {
	codec := newTestCodec(t)

	tradeInfo, err := codec.Encrypt(`{"Status":"SUCCESS","Result":{"MerchantOrderNo":"C26_7","Amt":3500,"TradeNo":"TN9"}}`)
	require.NoError(t, err)

	trade, err := DecodeCallback(codec, Envelope{TradeInfo: tradeInfo, TradeSha: codec.ComputeSignature(tradeInfo)})
	require.NoError(t, err)
	require.Equal(t, "C26_7", trade.MerchantOrderNo)
	require.Equal(t, models.TradeStatusSuccess, trade.Status)

	_, err = DecodeCallback(codec, Envelope{TradeInfo: tradeInfo, TradeSha: "BADSIGNATURE"})
	require.ErrorIs(t, err, ErrCrypto)
}

func TestBuildTradeRequest(t *testing.T) {
	codec := newTestCodec(t)

	req, err := BuildTradeRequest(codec, "MS12345678", "https://gateway.example.com/MPG/mpg_gateway", CheckoutOrder{
		OrderNo:   "ORD17001",
		Amount:    699,
		ItemDesc:  "Event ticket",
		Email:     "buyer@example.com",
		ReturnURL: "https://site.example.com/api/payments/return",
		NotifyURL: "https://site.example.com/api/payments/notify",
	})
	require.NoError(t, err)
	require.Equal(t, "MS12345678", req.MerchantID)
	require.Equal(t, Version, req.Version)
	require.Equal(t, "https://gateway.example.com/MPG/mpg_gateway", req.PayGateWay)
	require.True(t, codec.VerifySignature(req.TradeSha, req.TradeInfo))

	plaintext, err := codec.Decrypt(req.TradeInfo)
	require.NoError(t, err)
	values, err := url.ParseQuery(plaintext)
	require.NoError(t, err)
	require.Equal(t, "ORD17001", values.Get("MerchantOrderNo"))
	require.Equal(t, "699", values.Get("Amt"))
	require.Equal(t, "JSON", values.Get("RespondType"))
	require.NotEmpty(t, values.Get("TimeStamp"))
}
