package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/tile-leaderboard/internal/config"
	"github.com/tile-leaderboard/internal/domain"
	"github.com/tile-leaderboard/internal/service"
)

// CompletionRecorder stores completion submissions
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, source string, sub domain.CompletionSubmission) (*domain.CompletionEvent, error)
}

// Consumer consumes completion events from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       CompletionRecorder
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler CompletionRecorder, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	firstReady := c.ready

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ready := firstReady
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	select {
	case <-firstReady:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition. Offsets are marked
// only after the batch holding them is processed, so a crash replays the
// batch instead of losing it.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]domain.CompletionSubmission, 0, cfg.BatchSize)
	var pending []*sarama.ConsumerMessage
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() {
		h.consumer.processBatch(batch)
		for _, message := range pending {
			session.MarkMessage(message, "")
		}
		batch = batch[:0]
		pending = pending[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
			flush()
			return nil

		case <-batchTimer.C:
			flush()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			pending = append(pending, message)

			submission, err := DecodeCompletion(message.Value)
			if err != nil {
				h.consumer.logger.Warn("skipping completion message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}

			batch = append(batch, submission)
			if len(batch) >= cfg.BatchSize {
				flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// processBatch records each submission. Duplicates and unknown names are
// expected with at-least-once delivery and are only logged.
func (c *Consumer) processBatch(batch []domain.CompletionSubmission) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recorded := 0
	for _, sub := range batch {
		_, err := c.handler.RecordCompletion(ctx, service.SourceKafka, sub)
		switch {
		case err == nil:
			recorded++
		case errors.Is(err, domain.ErrAlreadyCompleted), domain.IsNotFoundError(err):
			c.logger.Warn("skipping completion", "rsn", sub.RSN, "tile_id", sub.TileID, "reason", err)
		default:
			c.logger.Error("failed to record completion", "rsn", sub.RSN, "tile_id", sub.TileID, "error", err)
		}
	}
	c.logger.Debug("processed batch", "batch_size", len(batch), "recorded", recorded)
}

// CompletionMessage is the wire format of a completion event
type CompletionMessage struct {
	RSN         string     `json:"rsn"`
	TileID      int64      `json:"tile_id"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DecodeCompletion parses and validates a completion message
func DecodeCompletion(value []byte) (domain.CompletionSubmission, error) {
	var msg CompletionMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return domain.CompletionSubmission{}, fmt.Errorf("decoding completion message: %w", err)
	}
	sub := domain.CompletionSubmission{
		RSN:         msg.RSN,
		TileID:      msg.TileID,
		CompletedAt: msg.CompletedAt,
	}
	if err := sub.Validate(); err != nil {
		return domain.CompletionSubmission{}, fmt.Errorf("decoding completion message: %w", err)
	}
	return sub, nil
}

// EncodeCompletion renders a submission in the wire format read by DecodeCompletion
func EncodeCompletion(sub domain.CompletionSubmission) ([]byte, error) {
	data, err := json.Marshal(CompletionMessage{
		RSN:         sub.RSN,
		TileID:      sub.TileID,
		CompletedAt: sub.CompletedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding completion message: %w", err)
	}
	return data, nil
}
