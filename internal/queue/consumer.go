package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joshsymonds/advisor/internal/metrics"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/pipeline"
	"github.com/joshsymonds/advisor/pkg/logger"
)

// MaxAttempts bounds how often a retryable job is requeued.
const MaxAttempts = 5

// Reader is the subset of kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Jobs runs pipeline jobs.
type Jobs interface {
	Ingest(ctx context.Context, reportID, fileRef string) (*pipeline.IngestResult, error)
	Generate(ctx context.Context, reportID string, reportType models.ReportType) (*pipeline.GenerateResult, error)
	Recategorize(ctx context.Context, filter pipeline.RecategorizeFilter) (*pipeline.RecategorizeResult, error)
}

// Consumer reads job messages and runs them.
type Consumer struct {
	reader  Reader
	jobs    Jobs
	requeue *Producer
	logger  logger.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewConsumer creates a consumer group member for cfg.Topic. Retryable
// failures are republished through requeue when it is non-nil.
func NewConsumer(cfg Config, jobs Jobs, requeue *Producer, log logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group ID is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
	})
	return newConsumer(reader, jobs, requeue, log), nil
}

func newConsumer(r Reader, jobs Jobs, requeue *Producer, log logger.Logger) *Consumer {
	return &Consumer{reader: r, jobs: jobs, requeue: requeue, logger: log}
}

// Start begins consuming in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("consumer is already running")
	}
	c.running = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Run(ctx)
	}()
	c.logger.Info("Job consumer started")
	return nil
}

// Stop cancels the loop, waits for the current job and closes the reader.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	c.logger.Info("Job consumer stopped")
	return nil
}

// Run fetches and handles messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
			c.logger.Error("Failed to commit message", "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)

	m, err := ParseMessage(msg.Value)
	if err != nil {
		metrics.RecordQueueMessage("consumed", "invalid")
		log.Error("Dropping invalid message", "error", err)
		return
	}

	metrics.QueueJobsInFlight.Inc()
	err = Dispatch(ctx, c.jobs, m)
	metrics.QueueJobsInFlight.Dec()

	if err == nil {
		metrics.RecordQueueMessage("consumed", "ok")
		return
	}
	metrics.RecordQueueMessage("consumed", "failed")
	log = log.With("kind", m.Kind, "report_id", m.ReportID)

	attempt := attemptOf(msg)
	if !Retryable(err) || c.requeue == nil {
		log.Error("Job failed", "error", err)
		return
	}
	if attempt >= MaxAttempts {
		log.Error("Job failed, giving up", "error", err, "attempts", attempt)
		return
	}
	if perr := c.requeue.publish(context.WithoutCancel(ctx), m, attempt+1); perr != nil {
		log.Error("Failed to requeue job", "error", perr)
		return
	}
	log.Warn("Job failed, requeued", "error", err, "attempt", attempt+1)
}

// Dispatch runs the job m describes.
func Dispatch(ctx context.Context, jobs Jobs, m Message) error {
	switch m.Kind {
	case KindIngest:
		_, err := jobs.Ingest(ctx, m.ReportID, m.FileRef)
		return err
	case KindGenerate:
		_, err := jobs.Generate(ctx, m.ReportID, m.ReportType)
		return err
	case KindRecategorize:
		_, err := jobs.Recategorize(ctx, pipeline.RecategorizeFilter{Scope: m.Filter, ReportID: m.ReportID})
		return err
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
}

// Retryable reports whether redelivering the job could succeed.
func Retryable(err error) bool {
	if errors.Is(err, pipeline.ErrJobInFlight) {
		return true
	}
	var jobErr *pipeline.JobError
	if errors.As(err, &jobErr) {
		return jobErr.Retryable
	}
	return false
}

func attemptOf(msg kafka.Message) int {
	for _, h := range msg.Headers {
		if h.Key == AttemptHeader {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}
