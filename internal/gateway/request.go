package gateway

import (
	"fmt"
	"strconv"
	"time"
)

// Version of the gateway MPG protocol this service speaks.
const Version = "2.0"

// CheckoutOrder carries the order fields needed to open a gateway checkout.
type CheckoutOrder struct {
	OrderNo   string
	Amount    int64
	ItemDesc  string
	Email     string
	ReturnURL string
	NotifyURL string
}

// TradeRequest is the form posted to the gateway at checkout time.
type TradeRequest struct {
	MerchantID string
	TradeInfo  string
	TradeSha   string
	Version    string
	PayGateWay string
}

// BuildTradeRequest encrypts the checkout fields into the gateway's trade
// request. Field order is fixed by the gateway protocol.
func BuildTradeRequest(codec *Codec, merchantID, gatewayURL string, order CheckoutOrder) (TradeRequest, error) {
	fields := []Field{
		{Key: "MerchantID", Value: merchantID},
		{Key: "RespondType", Value: "JSON"},
		{Key: "TimeStamp", Value: strconv.FormatInt(time.Now().Unix(), 10)},
		{Key: "Version", Value: Version},
		{Key: "MerchantOrderNo", Value: order.OrderNo},
		{Key: "Amt", Value: strconv.FormatInt(order.Amount, 10)},
		{Key: "ItemDesc", Value: order.ItemDesc},
		{Key: "Email", Value: order.Email},
		{Key: "ReturnURL", Value: order.ReturnURL},
		{Key: "NotifyURL", Value: order.NotifyURL},
	}
	tradeInfo, err := codec.EncryptFields(fields)
	if err != nil {
		return TradeRequest{}, fmt.Errorf("build trade request: %w", err)
	}
	return TradeRequest{
		MerchantID: merchantID,
		TradeInfo:  tradeInfo,
		TradeSha:   codec.ComputeSignature(tradeInfo),
		Version:    Version,
		PayGateWay: gatewayURL,
	}, nil
}
