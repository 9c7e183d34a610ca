package gateway

import (
	"fmt"

	"github.com/coursedesk/payment-service/internal/models"
)

// DecodeCallback runs the shared verify -> decrypt -> normalize pipeline used
// by both the notify and the return endpoints. A VerifiedTrade is never
// produced unless the checksum matched.
func DecodeCallback(codec *Codec, env Envelope) (models.VerifiedTrade, error) {
	if !codec.VerifySignature(env.TradeSha, env.TradeInfo) {
		return models.VerifiedTrade{}, fmt.Errorf("%w: trade checksum mismatch", ErrCrypto)
	}
	plaintext, err := codec.Decrypt(env.TradeInfo)
	if err != nil {
		return models.VerifiedTrade{}, err
	}
	return NormalizeDecrypted(plaintext)
}
