package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductScraped is published once per product of a finished run
	EventTypeProductScraped EventType = "CATALOG_PRODUCT_SCRAPED"
	// EventTypeRunCompleted closes the sequence of a run's product events
	EventTypeRunCompleted EventType = "CATALOG_RUN_COMPLETED"

	DefaultStream = "stream:catalog_products"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// ProductScrapedPayload is the data field of a product event.
type ProductScrapedPayload struct {
	EventID   string               `json:"event_id"`
	EventType string               `json:"event_type"`
	Timestamp time.Time            `json:"timestamp"`
	RunID     string               `json:"run_id"`
	Locality  string               `json:"locality"`
	Position  int                  `json:"position"`
	Product   models.ProductDetail `json:"product"`
	Source    string               `json:"source"`
}

// RunCompletedPayload is the data field of a run completion event.
type RunCompletedPayload struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"run_id"`
	Locality     string    `json:"locality"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	ProductCount int       `json:"product_count"`
	Source       string    `json:"source"`
}

// Publisher appends finished runs to a Redis stream.
type Publisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

// Save publishes one event per product followed by a completion event.
func (p *Publisher) Save(ctx context.Context, run *models.Run) error {
	now := time.Now()

	for i, product := range run.Products {
		payload := ProductScrapedPayload{
			EventID:   uuid.New().String(),
			EventType: string(EventTypeProductScraped),
			Timestamp: now,
			RunID:     run.ID.String(),
			Locality:  run.Locality.Name,
			Position:  i,
			Product:   product,
			Source:    "metro-scraper",
		}
		if err := p.publish(ctx, payload.EventID, EventTypeProductScraped, run, payload); err != nil {
			return fmt.Errorf("failed to publish product %s: %w", product.ID, err)
		}
	}

	completed := RunCompletedPayload{
		EventID:      uuid.New().String(),
		EventType:    string(EventTypeRunCompleted),
		Timestamp:    now,
		RunID:        run.ID.String(),
		Locality:     run.Locality.Name,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		ProductCount: len(run.Products),
		Source:       "metro-scraper",
	}
	if err := p.publish(ctx, completed.EventID, EventTypeRunCompleted, run, completed); err != nil {
		return fmt.Errorf("failed to publish run completion: %w", err)
	}

	p.logger.Info("run published",
		"run_id", run.ID,
		"locality", run.Locality.Name,
		"products", len(run.Products),
		"stream", p.stream)

	return nil
}

func (p *Publisher) publish(ctx context.Context, eventID string, eventType EventType, run *models.Run, payload interface{}) error {
	dataJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":       string(dataJSON),
			"event_id":   eventID,
			"event_type": string(eventType),
			"run_id":     run.ID.String(),
			"locality":   run.Locality.Name,
			"timestamp":  fmt.Sprintf("%d", time.Now().UnixNano()),
		},
	}

	if _, err := p.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}
