package worker

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/livefeed/internal/broker"
	"example.com/livefeed/internal/logger"
	"example.com/livefeed/internal/models"
	"example.com/livefeed/internal/store"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// Worker consumes relayed post events and repairs the owner post lists the
// request path may have left behind when a second write failed.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        store,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting reconciler",
		logger.F("workers", w.workerCount), logger.F("queue_size", w.jobQueueSize))

	jobs := make(chan kafka.Message, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- kafka.Message) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Warn("worker", "Kafka read error, backing off", err, logger.F("backoff", backoff.String()))
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				continue
			}

			select {
			case jobs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processLoop decodes event records and reconciles them one at a time.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-jobs:
			if !ok {
				return
			}

			rec, err := appkafka.DecodeRecord(msg)
			if err != nil {
				logg.Error("worker", "Invalid event record", err, logger.F("offset", msg.Offset))
				continue
			}
			if err := w.reconcile(ctx, rec); err != nil {
				logg.Error("worker", "Failed to reconcile post", err,
					logger.F("action", rec.Action), logger.F("post_id", rec.PostID))
			}
		}
	}
}

// reconcile makes the owner's post list agree with the post table for one
// post: a live post is listed on its creator, a deleted one is not.
// Both operations are idempotent, so replays are harmless.
func (w *Worker) reconcile(ctx context.Context, rec models.EventRecord) error {
	post, err := w.store.GetPost(ctx, rec.PostID)
	switch {
	case err == nil:
		if rec.Action == models.ActionDelete {
			// The post row outlived its delete event; leave it to a later event.
			return nil
		}
		if err := w.store.AddUserPost(ctx, post.CreatorID, post.ID); err != nil {
			return err
		}
		logg.Debug("worker", "Owner list confirmed", logger.F("post_id", post.ID))
		return nil

	case errors.Is(err, store.ErrNotFound):
		if rec.CreatorID == "" {
			return nil
		}
		err := w.store.RemoveUserPost(ctx, rec.CreatorID, rec.PostID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		logg.Debug("worker", "Owner list cleared", logger.F("post_id", rec.PostID))
		return nil

	default:
		return err
	}
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader and the store.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing store")
	w.store.Close()
	return nil
}
