package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/livo-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

var endpoints = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

type ordersAPI interface {
	Create(ctx context.Context, req *sq.CreateOrderRequest, opts ...sqoption.RequestOption) (*sq.CreateOrderResponse, error)
}

type refundsAPI interface {
	RefundPayment(ctx context.Context, req *sq.RefundPaymentRequest, opts ...sqoption.RequestOption) (*sq.RefundPaymentResponse, error)
}

// Client wraps the two Square APIs a booking payment needs: opening an order
// for the stay and refunding a captured payment.
type Client struct {
	orders        ordersAPI
	refunds       refundsAPI
	locationID    string
	currency      string
	webhookSecret string
	webhookURL    string
	limiter       *rate.Limiter
	logg          *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := endpoints[env]
	if !ok {
		return nil, fmt.Errorf("unknown square environment %q", env)
	}
	var missing []string
	for name, value := range map[string]string{
		"access token":   cfg.AccessToken,
		"location id":    cfg.LocationID,
		"webhook secret": cfg.WebhookSecret,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("square config missing %s", strings.Join(missing, ", "))
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(strings.TrimSpace(cfg.AccessToken)),
	)
	client := &Client{
		orders:        sdk.Orders,
		refunds:       sdk.Refunds,
		locationID:    strings.TrimSpace(cfg.LocationID),
		currency:      strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		webhookURL:    strings.TrimSpace(cfg.WebhookURL),
		logg:          logg,
	}
	if cfg.RateLimit > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}
	logg.Info(logg.WithField(ctx, "square_env", env), "square client ready")
	return client, nil
}

// SigningSecret is the key Square signs webhook deliveries with.
func (c *Client) SigningSecret() string { return c.webhookSecret }

// NotificationURL is the subscription URL covered by the webhook signature.
func (c *Client) NotificationURL() string { return c.webhookURL }

// CreateOrder opens a one line order for AmountMinor in the stay currency.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*sq.Order, error) {
	if params.LocationID == "" {
		params.LocationID = c.locationID
	}
	if params.Currency == "" {
		params.Currency = c.currency
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"square_op":    "create_order",
		"reference_id": params.ReferenceID,
		"amount_minor": params.AmountMinor,
	})
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.orders.Create(ctx, params.toSquareRequest(idempotencyKey("order", params.IdempotencyKey)))
	if err != nil {
		return nil, c.fail(ctx, "create order", err)
	}
	order := resp.GetOrder()
	if order != nil && order.ID != nil {
		c.logg.Info(c.logg.WithField(ctx, "order_id", *order.ID), "square order created")
	}
	return order, nil
}

// RefundPayment returns part or all of a captured payment.
func (c *Client) RefundPayment(ctx context.Context, params RefundParams) (*sq.PaymentRefund, error) {
	if params.Currency == "" {
		params.Currency = c.currency
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"square_op":    "refund_payment",
		"payment_id":   params.PaymentID,
		"amount_minor": params.AmountMinor,
	})
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.refunds.RefundPayment(ctx, params.toSquareRequest(idempotencyKey("refund", params.IdempotencyKey)))
	if err != nil {
		return nil, c.fail(ctx, "refund payment", err)
	}
	refund := resp.GetRefund()
	if refund != nil {
		c.logg.Info(c.logg.WithField(ctx, "refund_id", refund.ID), "square refund accepted")
	}
	return refund, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square rate limit wait aborted")
	}
	return nil
}

func (c *Client) fail(ctx context.Context, op string, err error) error {
	mapped := pkgerrors.Wrap(classify(err), err, "square "+op+" failed")
	c.logg.Error(ctx, "square call failed", err)
	return mapped
}

func idempotencyKey(kind, provided string) string {
	if key := strings.TrimSpace(provided); key != "" {
		return key
	}
	return "livo-" + kind + "-" + uuid.NewString()
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeDependency,
}

// classify maps a Square failure onto a domain code. A reused idempotency key
// or an authentication failure in the error body wins over the HTTP status.
func classify(err error) pkgerrors.Code {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.CodeDependency
	}
	for _, detail := range apiErrorDetails(apiErr) {
		switch {
		case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.CodeIdempotency
		case detail.Category == sq.ErrorCategoryAuthenticationError:
			return pkgerrors.CodeUnauthorized
		}
	}
	if code, ok := statusCodes[apiErr.StatusCode]; ok {
		return code
	}
	if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

func apiErrorDetails(apiErr *sqcore.APIError) []sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(inner.Error()), &body) != nil {
		return nil
	}
	return body.Errors
}
