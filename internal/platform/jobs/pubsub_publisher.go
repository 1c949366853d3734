// Package jobs publishes asynchronous events to Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/thobenayann/hexoprint-sub001/internal/contact"
)

// ContactEventType is the eventType attribute of contact messages.
const ContactEventType = "contact.submitted"

// ContactPublisher publishes contact.submitted events to a Pub/Sub topic.
type ContactPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewContactPublisher constructs a Pub/Sub backed contact event publisher.
func NewContactPublisher(topic *pubsub.Topic) (*ContactPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub contact publisher: topic is required")
	}
	return &ContactPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishContactSubmitted sends event and waits for the server acknowledgement.
func (p *ContactPublisher) PublishContactSubmitted(ctx context.Context, event contact.SubmittedEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub contact publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal contact event: %w", err)
	}

	attrs := map[string]string{"eventType": ContactEventType}
	setAttr(attrs, "submissionId", event.SubmissionID)
	setAttr(attrs, "messageId", event.MessageID)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "budget", event.Budget)
	setAttr(attrs, "deadline", event.Deadline)
	if event.FileCount > 0 {
		attrs["fileCount"] = strconv.Itoa(event.FileCount)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish contact event: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *ContactPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
