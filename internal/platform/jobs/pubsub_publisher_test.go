package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/thobenayann/hexoprint-sub001/internal/contact"
)

func TestContactPublisherPublishesEvent(t *testing.T) {
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

	topic, err := client.CreateTopic(ctx, "contact-submissions")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewContactPublisher(topic)
	if err != nil {
		t.Fatalf("NewContactPublisher: %v", err)
	}
	defer publisher.Stop()

	event := contact.SubmittedEvent{
		SubmissionID: "01JNX0000000000000000000AB",
		MessageID:    "re_123",
		Type:         "professionnel",
		Name:         "Camille Martin",
		Email:        "camille@example.com",
		Budget:       "500-1000",
		FileCount:    2,
		SubmittedAt:  time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
	if err := publisher.PublishContactSubmitted(ctx, event); err != nil {
		t.Fatalf("PublishContactSubmitted: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload contact.SubmittedEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.SubmissionID != event.SubmissionID || payload.Email != event.Email || !payload.SubmittedAt.Equal(event.SubmittedAt) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != ContactEventType {
		t.Fatalf("expected eventType attribute, got %q", attrs["eventType"])
	}
	if attrs["fileCount"] != "2" || attrs["budget"] != "500-1000" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["deadline"]; ok {
		t.Fatalf("empty deadline should not be an attribute")
	}
}

func TestNewContactPublisherRequiresTopic(t *testing.T) {
	if _, err := NewContactPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
	var p *ContactPublisher
	if err := p.PublishContactSubmitted(context.Background(), contact.SubmittedEvent{}); err == nil {
		t.Fatalf("expected error for nil publisher")
	}
}
