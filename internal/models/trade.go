package models

// TradeStatus is the normalized gateway result status.
type TradeStatus string

const (
	TradeStatusSuccess TradeStatus = "SUCCESS"
	TradeStatusFailure TradeStatus = "FAILURE"
	TradeStatusUnknown TradeStatus = "UNKNOWN"
)

// VerifiedTrade is the decrypted, signature-verified, normalized result of a
// gateway callback. It is only constructed after the signature check passed.
type VerifiedTrade struct {
	Status          TradeStatus
	MerchantOrderNo string
	Amount          float64
	AmountRaw       string
	GatewayTradeID  string
	PaymentMethod   string
	RawMessage      string
}

// OutcomeKind classifies the result of reconciling one callback.
type OutcomeKind string

const (
	// AcceptedNew: the callback was reconciled for the first time.
	AcceptedNew OutcomeKind = "ACCEPTED_NEW"
	// AcceptedDuplicate: the order was already settled; side effects suppressed.
	AcceptedDuplicate OutcomeKind = "ACCEPTED_DUPLICATE"
	// RejectedPermanent: the callback can never succeed; acknowledge to stop retries.
	RejectedPermanent OutcomeKind = "REJECTED_PERMANENT"
	// RejectedTransient: infrastructure failure; reject so the gateway retries.
	RejectedTransient OutcomeKind = "REJECTED_TRANSIENT"
)

// ReconciliationOutcome is the engine's terminal decision for one callback.
type ReconciliationOutcome struct {
	Kind        OutcomeKind
	Reason      string
	OrderNo     string
	SideEffects []SideEffect
}

// SideEffectType enumerates the post-acknowledgement actions.
type SideEffectType string

const (
	SideEffectConfirmationEmail SideEffectType = "confirmation_email"
	SideEffectNewsletterSignup  SideEffectType = "newsletter_signup"
	SideEffectAccountingWebhook SideEffectType = "accounting_webhook"
	SideEffectSettledEvent      SideEffectType = "settled_event"
)

// SideEffect describes one best-effort action to run after the
// acknowledgement has been sent. Failures are logged, never retried here.
type SideEffect struct {
	ID      string
	Type    SideEffectType
	OrderNo string
	Email   string
	Name    string
	Amount  float64
}
