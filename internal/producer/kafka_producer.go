package producer

import (
	"context"
	"encoding/json"
	"time"

	"marketplace-order-service/internal/service"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderPaid          = "order.paid"
	TypeOrderStatusChanged = "order.status_changed"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEventProducer publishes order lifecycle events to one topic.
type OrderEventProducer struct {
	writer messageWriter
	log    *zap.Logger
}

func NewOrderEventProducer(brokers []string, topic string, log *zap.Logger) *OrderEventProducer {
	return &OrderEventProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
		log: log,
	}
}

type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func (p *OrderEventProducer) send(ctx context.Context, typ, key string, at time.Time, data any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	value, err := json.Marshal(Envelope{Type: typ, OccurredAt: at, Data: raw})
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(typ)}},
	}); err != nil {
		return err
	}
	p.log.Debug("Событие отправлено в Kafka", zap.String("type", typ), zap.String("key", key))
	return nil
}

func (p *OrderEventProducer) PublishOrderCreated(ctx context.Context, e service.OrderCreatedEvent) error {
	return p.send(ctx, TypeOrderCreated, e.OrderID.String(), e.CreatedAt, e)
}

// PublishOrderPaid is keyed by the gateway payment id since one payment
// may cover several orders.
func (p *OrderEventProducer) PublishOrderPaid(ctx context.Context, e service.OrderPaidEvent) error {
	return p.send(ctx, TypeOrderPaid, e.ProviderPaymentID, e.PaidAt, e)
}

func (p *OrderEventProducer) PublishOrderStatusChanged(ctx context.Context, e service.OrderStatusChangedEvent) error {
	return p.send(ctx, TypeOrderStatusChanged, e.OrderID.String(), e.ChangedAt, e)
}

func (p *OrderEventProducer) Close() error {
	return p.writer.Close()
}
