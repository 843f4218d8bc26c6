package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerrad567/dcsense-core/internal/infrastructure/mqtt"
)

// submitTimeout bounds the storage work for one broker message.
const submitTimeout = 30 * time.Second

// MQTTClient is the subset of *mqtt.Client the ingest transport needs.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishDefault(topic string, payload []byte) error
}

// Subscriber feeds reading batches published on the broker into a Pipeline.
// The payload is the same JSON array accepted over HTTP; the controller in
// the topic must match the batch.
type Subscriber struct {
	client   MQTTClient
	pipeline *Pipeline
	filter   string
	qos      byte
	logger   *slog.Logger
}

// NewSubscriber creates a Subscriber for the given topic filter, which must
// have a single "+" level in the controller position.
func NewSubscriber(client MQTTClient, pipeline *Pipeline, filter string, qos byte, logger *slog.Logger) *Subscriber {
	if filter == "" {
		filter = mqtt.Topics{}.AllControllerReadings()
	}
	return &Subscriber{
		client:   client,
		pipeline: pipeline,
		filter:   filter,
		qos:      qos,
		logger:   logger,
	}
}

// Start subscribes to the reading filter.
func (s *Subscriber) Start() error {
	if err := s.client.Subscribe(s.filter, s.qos, s.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.filter, err)
	}
	s.logger.Info("mqtt reading subscriber started", "filter", s.filter)
	return nil
}

// Stop removes the subscription.
func (s *Subscriber) Stop() error {
	return s.client.Unsubscribe(s.filter)
}

func (s *Subscriber) handleMessage(topic string, payload []byte) error {
	topicController, err := mqtt.ControllerIDFromTopic(s.filter, topic)
	if err != nil {
		return err
	}

	var batch []RawReading
	if err := json.Unmarshal(payload, &batch); err != nil {
		return fmt.Errorf("decoding readings from %s: %w", topic, err)
	}
	if len(batch) > 0 && batch[0].Controller != topicController {
		return fmt.Errorf("%w: topic %d, batch %d", ErrControllerMismatch, topicController, batch[0].Controller)
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	if _, err := s.pipeline.submit(ctx, TransportMQTT, batch); err != nil {
		return fmt.Errorf("ingesting readings from %s: %w", topic, err)
	}
	return nil
}

// promotionEvent is the payload published on a controller's promoted topic.
type promotionEvent struct {
	Controller int64     `json:"controller"`
	Readings   int       `json:"readings"`
	Time       time.Time `json:"time"`
	PromotedAt time.Time `json:"promoted_at"`
}

// PromotionPublisher announces promotions on dcsense/controller/{id}/promoted.
// Publishing is best effort; failures are logged.
type PromotionPublisher struct {
	client MQTTClient
	logger *slog.Logger
	now    func() time.Time
}

// NewPromotionPublisher creates a PromotionPublisher.
func NewPromotionPublisher(client MQTTClient, logger *slog.Logger) *PromotionPublisher {
	return &PromotionPublisher{client: client, logger: logger, now: time.Now}
}

// NotifyPromotion implements PromotionNotifier.
func (p *PromotionPublisher) NotifyPromotion(_ context.Context, result Result, readings []Reading) {
	event := promotionEvent{
		Controller: result.ControllerID,
		Readings:   result.Readings,
		PromotedAt: p.now().UTC(),
	}
	if len(readings) > 0 {
		event.Time = readings[0].Time
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encoding promotion event", "controller", result.ControllerID, "error", err)
		return
	}

	topic := mqtt.Topics{}.ControllerPromoted(result.ControllerID)
	if err := p.client.PublishDefault(topic, payload); err != nil {
		p.logger.Warn("publishing promotion event failed", "topic", topic, "error", err)
	}
}
