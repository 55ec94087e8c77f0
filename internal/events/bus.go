package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/perishables/internal/config"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	pricingdomain "github.com/smallbiznis/perishables/internal/pricing/domain"
	"github.com/smallbiznis/perishables/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TopicPriceChanged     = "perishables.price_changed"
	TopicInventoryChanged = "perishables.inventory_changed"
	TopicExpiryAlert      = "perishables.expiry_alert"
	TopicKPIUpdate        = "perishables.kpi_update"

	metadataStoreID = "store_id"

	channelBuffer = 256
)

var ErrMissingBrokers = errors.New("kafka brokers not configured")

// Bus carries store-scoped domain events between the writers and every hub instance.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	log        *zap.Logger
}

type Params struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg config.Config
	Log *zap.Logger
}

func NewBus(p Params) (*Bus, error) {
	log := p.Log.Named("events.bus")
	wlog := NewZapLogger(log)

	var (
		bus *Bus
		err error
	)
	switch p.Cfg.EventsDriver {
	case config.EventsDriverKafka:
		bus, err = newKafkaBus(p.Cfg, wlog)
		if err != nil {
			return nil, err
		}
	default:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: channelBuffer}, wlog)
		bus = &Bus{publisher: ch, subscriber: ch}
	}
	bus.log = log
	log.Info("event bus ready", zap.String("driver", p.Cfg.EventsDriver))

	p.Lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return bus.Close()
		},
	})
	return bus, nil
}

// NewChannelBus builds an in-process bus.
func NewChannelBus(log *zap.Logger) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: channelBuffer}, NewZapLogger(log))
	return &Bus{publisher: ch, subscriber: ch, log: log.Named("events.bus")}
}

func newKafkaBus(cfg config.Config, wlog watermill.LoggerAdapter) (*Bus, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, ErrMissingBrokers
	}
	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wlog)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.KafkaBrokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		ConsumerGroup:         cfg.KafkaConsumerGroup,
	}, wlog)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("kafka subscriber: %w", err)
	}
	return &Bus{publisher: publisher, subscriber: subscriber}, nil
}

func (b *Bus) PublishPriceChanged(ctx context.Context, change pricingdomain.PriceChange) error {
	return b.publish(ctx, TopicPriceChanged, change.StoreID, change)
}

func (b *Bus) PublishInventoryChanged(ctx context.Context, item inventorydomain.ItemView) error {
	return b.publish(ctx, TopicInventoryChanged, item.StoreID, realtime.InventoryUpdate{Item: item})
}

func (b *Bus) PublishExpiryAlert(ctx context.Context, storeID string, alert realtime.ExpiryAlert) error {
	return b.publish(ctx, TopicExpiryAlert, storeID, alert)
}

func (b *Bus) PublishKPIUpdate(ctx context.Context, storeID string, kpis realtime.KPIUpdate) error {
	return b.publish(ctx, TopicKPIUpdate, storeID, kpis)
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, topic)
}

func (b *Bus) Close() error {
	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if any(b.subscriber) != any(b.publisher) {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) publish(ctx context.Context, topic, storeID string, payload any) error {
	if storeID == "" {
		return realtime.ErrInvalidStore
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := message.NewMessage(ulid.Make().String(), raw)
	msg.Metadata.Set(metadataStoreID, storeID)
	msg.SetContext(ctx)
	return b.publisher.Publish(topic, msg)
}
