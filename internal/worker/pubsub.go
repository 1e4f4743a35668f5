package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the trigger subscription.
const (
	JobFavouritesRefresh = "favourites_refresh"
	JobRegionProbe       = "region_probe"
	JobCacheInvalidate   = "cache_invalidate"
)

// ErrInvalidMessage is returned for messages that can never succeed.
var ErrInvalidMessage = errors.New("invalid trigger message")

// CacheInvalidator clears cache entries by key prefix.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, prefix string) int
}

// TriggerMessage is a worker job request.
type TriggerMessage struct {
	JobType string `json:"job_type"`

	// Prefix selects cache keys for cache_invalidate; empty clears everything.
	Prefix string `json:"prefix,omitempty"`
}

// Dispatcher executes trigger messages. It is transport independent.
type Dispatcher struct {
	refreshJob *RefreshJob
	region     RegionDetector
	cache      CacheInvalidator
	logger     zerolog.Logger
}

// DispatcherConfig holds configuration for the Dispatcher.
type DispatcherConfig struct {
	RefreshJob *RefreshJob
	Region     RegionDetector
	Cache      CacheInvalidator
	Logger     zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		refreshJob: cfg.RefreshJob,
		region:     cfg.Region,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
}

// Dispatch decodes and runs one message.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg TriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch msg.JobType {
	case JobFavouritesRefresh:
		if d.refreshJob == nil {
			return nil
		}
		result := d.refreshJob.Run(ctx)
		if result.Total > 0 && result.Failed == result.Total {
			return fmt.Errorf("every favourite failed to refresh (%d)", result.Failed)
		}
		return nil

	case JobRegionProbe:
		if d.region != nil {
			d.region.Detect(ctx)
		}
		return nil

	case JobCacheInvalidate:
		if d.cache != nil {
			removed := d.cache.InvalidateCache(ctx, msg.Prefix)
			d.logger.Info().Str("prefix", msg.Prefix).Int("removed", removed).Msg("cache invalidated by trigger")
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidMessage, msg.JobType)
	}
}

// PubSubHandler feeds Pub/Sub messages to a Dispatcher.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	err := h.dispatcher.Dispatch(ctx, msg.Data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(startTime)).Msg("job completed successfully")
		msg.Ack()
	case errors.Is(err, ErrInvalidMessage):
		// Redelivery would not help.
		logger.Warn().Err(err).Msg("dropping message")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}
