package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

// Client resolves the booking, payment and refund topics and subscriptions
// against one GCP project. Publishers are cached per topic so repeated
// lookups share batching and ordering state.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     raw,
		projectID:  projectID,
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "gcp_project", projectID), "pubsub client ready")
	}
	return c, nil
}

// Ping checks that every configured subscription exists. All missing
// subscriptions are reported together.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	names := nonEmpty(c.cfg.PaymentSubscription, c.cfg.RefundSubscription, c.cfg.AnalyticsSubscription)
	if len(names) == 0 {
		return errors.New("no pubsub subscriptions configured")
	}
	var errs error
	for _, name := range names {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: resourceName(c.projectID, "subscriptions", name),
		})
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			errs = multierr.Append(errs, fmt.Errorf("subscription %q does not exist", name))
		default:
			errs = multierr.Append(errs, fmt.Errorf("checking subscription %q: %w", name, err))
		}
	}
	return errs
}

// Subscription returns a subscriber for an id or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Subscriber(resourceName(c.projectID, "subscriptions", name))
}

func (c *Client) PaymentSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.PaymentSubscription)
}

func (c *Client) RefundSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.RefundSubscription)
}

// AnalyticsSubscription is the booking topic fan-out that feeds BigQuery.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns the ordered publisher for a topic id or resource name.
// Messages sharing an ordering key reach subscribers in publish order.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	full := resourceName(c.projectID, "topics", name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[full]; ok {
		return pub
	}
	pub := c.client.Publisher(full)
	pub.EnableMessageOrdering = true
	c.publishers[full] = pub
	return pub
}

// Close flushes cached publishers before closing the underlying client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, pub := range c.publishers {
		pub.Stop()
	}
	c.publishers = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a bare id into projects/<project>/<kind>/<id>. Names
// already in resource form pass through untouched.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
