package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/inkwell-books/api/internal/services"
)

// PubSubCatalogPublisher publishes catalog change events to a Pub/Sub topic.
// Consumers use them to refresh caches and search indexes.
type PubSubCatalogPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCatalogPublisher constructs a Pub/Sub backed catalog event publisher.
func NewPubSubCatalogPublisher(topic *pubsub.Topic) (*PubSubCatalogPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub catalog publisher: topic is required")
	}
	return &PubSubCatalogPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCatalogEvent enqueues a catalog change message on the configured topic.
func (p *PubSubCatalogPublisher) PublishCatalogEvent(ctx context.Context, event services.CatalogEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub catalog publisher: not initialised")
	}

	data, err := p.marshal(catalogEventMessage{
		Action:    event.Action,
		ProductID: event.ProductID,
		Slug:      event.Slug,
		ActorID:   event.ActorID,
	})
	if err != nil {
		return fmt.Errorf("marshal catalog event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "action", event.Action)
	setAttr(attrs, "productId", event.ProductID)
	setAttr(attrs, "slug", event.Slug)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish catalog event: %w", err)
	}
	return nil
}

type catalogEventMessage struct {
	Action    string `json:"action"`
	ProductID string `json:"productId"`
	Slug      string `json:"slug,omitempty"`
	ActorID   string `json:"actorId,omitempty"`
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.CatalogEventPublisher = (*PubSubCatalogPublisher)(nil)
