package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/seagull-retail/api/internal/services"
)

// CheckoutCompletedEventType is stored in the eventType attribute of every checkout message.
const CheckoutCompletedEventType = "checkout.completed"

// PubSubCheckoutPublisher publishes checkout completion events to a Pub/Sub topic.
type PubSubCheckoutPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.CheckoutEventPublisher = (*PubSubCheckoutPublisher)(nil)

// NewPubSubCheckoutPublisher constructs a Pub/Sub backed checkout event publisher.
func NewPubSubCheckoutPublisher(topic *pubsub.Topic) (*PubSubCheckoutPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub checkout publisher: topic is required")
	}
	return &PubSubCheckoutPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCheckoutCompleted sends the event and waits for the server-assigned message id.
func (p *PubSubCheckoutPublisher) PublishCheckoutCompleted(ctx context.Context, event services.CheckoutCompletedEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub checkout publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal checkout event: %w", err)
	}

	attrs := map[string]string{"eventType": CheckoutCompletedEventType}
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "cartId", event.CartID)
	setAttr(attrs, "authorizationCode", event.AuthorizationCode)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish checkout event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages and releases topic goroutines.
func (p *PubSubCheckoutPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
