package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/inkwell-books/api/internal/services"
)

func TestPubSubCatalogPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "catalog-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubCatalogPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubCatalogPublisher: %v", err)
	}

	event := services.CatalogEvent{
		Action:    services.CatalogEventUpdated,
		ProductID: "p1",
		Slug:      "dune-vol-1",
		ActorID:   "admin_1",
	}
	if err := publisher.PublishCatalogEvent(ctx, event); err != nil {
		t.Fatalf("PublishCatalogEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload struct {
		Action    string `json:"action"`
		ProductID string `json:"productId"`
		Slug      string `json:"slug"`
		ActorID   string `json:"actorId"`
	}
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Action != services.CatalogEventUpdated || payload.ProductID != "p1" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["slug"]; attr != "dune-vol-1" {
		t.Fatalf("expected slug attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["actorId"]; ok {
		t.Fatalf("actor attribute should not be present")
	}
}

func TestNewPubSubCatalogPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubCatalogPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
