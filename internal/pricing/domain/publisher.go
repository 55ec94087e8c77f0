package domain

import "context"

//go:generate mockgen -source=publisher.go -destination=../mocks/mock_publisher.go -package=mocks

// EventPublisher is told about price changes after they commit.
type EventPublisher interface {
	PublishPriceChanged(ctx context.Context, change PriceChange) error
}
