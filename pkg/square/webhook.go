package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// SignatureHeader carries Square's HMAC-SHA256 webhook signature.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// Webhook event types the booking engine reacts to.
const (
	EventPaymentUpdated = "payment.updated"
	EventRefundUpdated  = "refund.updated"
	PaymentCompleted    = "COMPLETED"
)

// WebhookEvent is the subset of a Square notification the engine reads.
type WebhookEvent struct {
	MerchantID string `json:"merchant_id"`
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	CreatedAt  string `json:"created_at"`
	Data       struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Payment *WebhookPayment `json:"payment,omitempty"`
			Refund  *WebhookRefund  `json:"refund,omitempty"`
		} `json:"object"`
	} `json:"data"`
}

type WebhookPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type WebhookRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
}

// ParseWebhookEvent decodes a notification body.
func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	event.EventID = strings.TrimSpace(event.EventID)
	return &event, nil
}

// VerifyWebhookSignature checks base64(HMAC-SHA256(secret, notificationURL+body))
// against the signature header value.
func VerifyWebhookSignature(payload []byte, notificationURL, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignWebhook(payload, notificationURL, secret)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// SignWebhook computes the signature Square would send for payload.
func SignWebhook(payload []byte, notificationURL, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
