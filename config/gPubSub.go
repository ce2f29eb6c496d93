package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// AuditMessage is the wire shape of a committed audit event on the audit topic.
type AuditMessage struct {
	ID            int             `json:"id"`
	WorkOrderId   int             `json:"work_order_id"`
	Sequence      int64           `json:"sequence"`
	Kind          string          `json:"kind"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ActorName     string          `json:"actor_name"`
	CreatedAt     time.Time       `json:"created_at"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

// GetPubSubClient returns a Pub/Sub client, initializing with retries if needed.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++

		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			pubsubClientMu.Lock()
			if pubsubClient == nil {
				pubsubClient = c
			} else {
				_ = c.Close()
			}
			c2 := pubsubClient
			pubsubClientMu.Unlock()

			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c2, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		sleep := retryDelay(attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

// PubSubAuditPublisher publishes audit messages to a single topic, ordered per work order.
type PubSubAuditPublisher struct {
	Topic string

	mu    sync.Mutex
	topic *pubsub.Topic
}

func NewPubSubAuditPublisher() (*PubSubAuditPublisher, error) {
	topic := os.Getenv("PUBSUB_AUDIT_TOPIC")
	if topic == "" {
		return nil, errors.New("PUBSUB_AUDIT_TOPIC is required")
	}
	return &PubSubAuditPublisher{Topic: topic}, nil
}

func (p *PubSubAuditPublisher) getTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		return p.topic, nil
	}
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	t, err := CreateTopicIfNotExists(ctx, client, p.Topic)
	if err != nil {
		return nil, err
	}
	t.EnableMessageOrdering = true
	p.topic = t
	return t, nil
}

// PublishAuditEvent publishes and returns the Pub/Sub server-assigned message ID.
func (p *PubSubAuditPublisher) PublishAuditEvent(ctx context.Context, msg AuditMessage) (string, error) {
	t, err := p.getTopic(ctx)
	if err != nil {
		return "", err
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	orderingKey := fmt.Sprintf("work-order-%d", msg.WorkOrderId)
	result := t.Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"work_order_id": fmt.Sprint(msg.WorkOrderId),
			"kind":          msg.Kind,
		},
		OrderingKey: orderingKey,
	})

	id, err := result.Get(ctx)
	if err != nil {
		// a failed ordering key stays paused until resumed
		t.ResumePublish(orderingKey)
		return "", err
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubAuditPublisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		p.topic.Stop()
	}
}
