package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/realtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var routes = map[string]realtime.EventType{
	TopicPriceChanged:     realtime.EventPriceUpdate,
	TopicInventoryChanged: realtime.EventInventoryUpdate,
	TopicExpiryAlert:      realtime.EventExpiryAlert,
	TopicKPIUpdate:        realtime.EventKPIUpdate,
}

// Forwarder relays bus messages to the local hub as store broadcasts.
type Forwarder struct {
	bus    *Bus
	hub    *realtime.Hub
	clock  clock.Clock
	log    *zap.Logger
	tracer trace.Tracer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewForwarder(bus *Bus, hub *realtime.Hub, clk clock.Clock, log *zap.Logger) *Forwarder {
	return &Forwarder{
		bus:    bus,
		hub:    hub,
		clock:  clk,
		log:    log.Named("events.forwarder"),
		tracer: otel.Tracer("perishables/events"),
	}
}

// Start subscribes to every routed topic. Consumption runs until Stop or ctx ends.
func (f *Forwarder) Start(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)
	for topic, eventType := range routes {
		msgs, err := f.bus.Subscribe(ctx, topic)
		if err != nil {
			f.cancel()
			return err
		}
		f.wg.Add(1)
		go f.consume(topic, eventType, msgs)
	}
	return nil
}

func (f *Forwarder) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

func (f *Forwarder) consume(topic string, eventType realtime.EventType, msgs <-chan *message.Message) {
	defer f.wg.Done()
	for msg := range msgs {
		f.forward(topic, eventType, msg)
		msg.Ack()
	}
}

func (f *Forwarder) forward(topic string, eventType realtime.EventType, msg *message.Message) int {
	storeID := msg.Metadata.Get(metadataStoreID)
	if storeID == "" {
		f.log.Warn("message without store", zap.String("topic", topic), zap.String("message_id", msg.UUID))
		return 0
	}
	if !json.Valid(msg.Payload) {
		f.log.Warn("malformed payload", zap.String("topic", topic), zap.String("message_id", msg.UUID))
		return 0
	}

	_, span := f.tracer.Start(msg.Context(), "events.forward", trace.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("store_id", storeID),
	))
	defer span.End()

	delivered := f.hub.Broadcast(storeID, realtime.NewEvent(eventType, json.RawMessage(msg.Payload), f.clock.Now()))
	span.SetAttributes(attribute.Int("delivered", delivered))
	f.log.Debug("forwarded",
		zap.String("topic", topic),
		zap.String("store_id", storeID),
		zap.Int("delivered", delivered),
	)
	return delivered
}
