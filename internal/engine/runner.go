package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"hyperwatch/internal/metrics"
	"hyperwatch/internal/queue"
)

// Runner drives one worker: it consumes the worker's topic, forwards results
// and triggers beats on a fixed interval.
type Runner struct {
	worker    Worker
	consumer  queue.Consumer
	publisher *Publisher
	next      []string
	interval  time.Duration
	logger    *slog.Logger
}

// NewRunner creates a runner. next lists the topics results are forwarded
// to; it may be empty for the last engine of a chain.
func NewRunner(
	worker Worker,
	consumer queue.Consumer,
	publisher *Publisher,
	next []string,
	interval time.Duration,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		worker:    worker,
		consumer:  consumer,
		publisher: publisher,
		next:      next,
		interval:  interval,
		logger:    logger.With("engine", worker.Name()),
	}
}

// Run loads the configuration once, then consumes until ctx is canceled.
// Buffered worker state is flushed before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	r.beat(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+r.interval.String(), func() { r.beat(ctx) }); err != nil {
		return err
	}
	c.Start()

	r.logger.Info("engine started", "next", r.next, "beat_interval", r.interval)
	err := r.consumer.Start(ctx, r.handle)

	<-c.Stop().Done()

	if s, ok := r.worker.(Stopper); ok {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := s.Stop(stopCtx); serr != nil {
			r.logger.Error("failed to stop engine", "error", serr)
		}
	}
	r.logger.Info("engine stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) beat(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := r.worker.Beat(ctx); err != nil {
		metrics.BeatsTotal.WithLabelValues(r.worker.Name(), "failure").Inc()
		r.logger.Error("beat failed", "error", err)
		return
	}
	metrics.BeatsTotal.WithLabelValues(r.worker.Name(), "success").Inc()
}

// handle processes one message. Errors are logged here and returned to the
// consumer, which moves on to the next message.
func (r *Runner) handle(ctx context.Context, msg *queue.Message) error {
	name := r.worker.Name()

	ev, err := Decode(msg)
	if err != nil {
		r.logger.Error("dropping undecodable message", "error", err)
		metrics.EventsProcessedTotal.WithLabelValues(name, "error").Inc()
		return nil
	}

	start := time.Now()
	res, err := r.worker.Work(ctx, ev)
	metrics.EventProcessingLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EventsProcessedTotal.WithLabelValues(name, "error").Inc()
		r.logger.Error("failed to process event", "rk", ev.Key(), "error", err)
		return err
	}
	metrics.EventsProcessedTotal.WithLabelValues(name, res.label()).Inc()

	if res.Dropped() {
		r.logger.Debug("event dropped", "rk", ev.Key())
		return nil
	}

	topics := r.next
	if res.Route != "" {
		topics = []string{res.Route}
	}
	for _, topic := range topics {
		if err := r.publisher.Publish(ctx, topic, res.Event); err != nil {
			r.logger.Error("failed to forward event", "rk", res.Event.Key(), "topic", topic, "error", err)
			return err
		}
	}
	return nil
}
