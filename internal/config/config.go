package config

import (
	"fmt"
	"os"
)

const (
	hashKeyLen = 32
	hashIVLen  = 16
)

// GatewayCredentials is the merchant key material for the payment gateway.
// Validated once at startup, passed explicitly into the codec, never read
// from the environment mid-request.
type GatewayCredentials struct {
	MerchantID string
	HashKey    string
	HashIV     string
	GatewayURL string
}

type Config struct {
	DatabaseURL          string
	RedisURL             string
	KafkaBrokers         string
	NatsURL              string
	SiteBaseURL          string
	NewsletterWebhookURL string
	AccountingWebhookURL string
	JaegerEndpoint       string
	Port                 string
	Gateway              GatewayCredentials
}

func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	siteBaseURL := os.Getenv("SITE_BASE_URL")
	if siteBaseURL == "" {
		siteBaseURL = "http://localhost:" + port
	}

	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		KafkaBrokers:         os.Getenv("KAFKA_BROKERS"),
		NatsURL:              os.Getenv("NATS_URL"),
		SiteBaseURL:          siteBaseURL,
		NewsletterWebhookURL: os.Getenv("NEWSLETTER_WEBHOOK_URL"),
		AccountingWebhookURL: os.Getenv("ACCOUNTING_WEBHOOK_URL"),
		JaegerEndpoint:       os.Getenv("JAEGER_ENDPOINT"),
		Port:                 port,
		Gateway: GatewayCredentials{
			MerchantID: os.Getenv("GATEWAY_MERCHANT_ID"),
			HashKey:    os.Getenv("GATEWAY_HASH_KEY"),
			HashIV:     os.Getenv("GATEWAY_HASH_IV"),
			GatewayURL: os.Getenv("GATEWAY_URL"),
		},
	}

	if err := cfg.Gateway.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the gateway's key-material contract up front so a
// misconfigured deployment fails at startup, not on the first callback.
func (g GatewayCredentials) Validate() error {
	if g.MerchantID == "" {
		return fmt.Errorf("config: GATEWAY_MERCHANT_ID is required")
	}
	if len(g.HashKey) != hashKeyLen {
		return fmt.Errorf("config: GATEWAY_HASH_KEY must be %d bytes, got %d", hashKeyLen, len(g.HashKey))
	}
	if len(g.HashIV) != hashIVLen {
		return fmt.Errorf("config: GATEWAY_HASH_IV must be %d bytes, got %d", hashIVLen, len(g.HashIV))
	}
	if g.GatewayURL == "" {
		return fmt.Errorf("config: GATEWAY_URL is required")
	}
	return nil
}
