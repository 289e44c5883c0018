package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// WebhookVerified stands in for the client signature on webhook captures.
const WebhookVerified = "WEBHOOK_VERIFIED"

// SignClientPayment returns hex(HMAC-SHA256(secret, orderID|paymentID)).
func SignClientPayment(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyClientSignature compares in constant time.
func VerifyClientSignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || strings.TrimSpace(signature) == "" {
		return false
	}
	expected := SignClientPayment(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
