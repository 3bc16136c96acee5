// Package processor assembles the engine chain and runs it.
// Events flow entities -> event_filter -> eventstore; stored events are
// published on the alerts topic and handed to the notifier.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"hyperwatch/internal/archiver"
	"hyperwatch/internal/config"
	"hyperwatch/internal/engine"
	"hyperwatch/internal/eventfilter"
	"hyperwatch/internal/eventstore"
	"hyperwatch/internal/notification"
	"hyperwatch/internal/queue"
	"hyperwatch/internal/store"
	"hyperwatch/internal/topology"
)

// AlertsConsumer is the consumer name of the alert sink.
const AlertsConsumer = "alerts"

// ConsumerFactory returns the consumer of one worker of an engine on topic.
// Worker n of every engine must receive the same routing keys.
type ConsumerFactory func(topic, engine string, worker int) (queue.Consumer, error)

// Deps contains all dependencies required to create a Service.
type Deps struct {
	Config    *config.Config
	Store     store.RecordStore
	Producer  queue.Producer
	Consumers ConsumerFactory
	Notifier  notification.Notifier
	Logger    *slog.Logger
}

// Service runs every worker of every engine plus the alert sinks.
type Service struct {
	runners   []*engine.Runner
	sinks     []*notification.Sink
	consumers []queue.Consumer
	archivers []*archiver.Archiver
	logger    *slog.Logger
}

// NewService creates pipeline.workers instances of each engine.
func NewService(deps Deps) (*Service, error) {
	cfg := deps.Config
	topics := cfg.Pipeline.Topics
	interval := cfg.Pipeline.BeatInterval
	publisher := engine.NewPublisher(deps.Producer)

	s := &Service{logger: deps.Logger}

	add := func(w engine.Worker, topic string, next []string, worker int) error {
		consumer, err := deps.Consumers(topic, w.Name(), worker)
		if err != nil {
			return fmt.Errorf("failed to create %s consumer: %w", w.Name(), err)
		}
		s.consumers = append(s.consumers, consumer)
		logger := deps.Logger.With("worker", worker)
		s.runners = append(s.runners, engine.NewRunner(w, consumer, publisher, next, interval, logger))
		return nil
	}

	for i := 0; i < cfg.Pipeline.Workers; i++ {
		resolver := topology.New(deps.Store, deps.Logger)
		if err := add(resolver, topics.Entities, []string{topics.EventFilter}, i); err != nil {
			return nil, err
		}

		filter := eventfilter.New(deps.Store, publisher, topics.Alerts, interval, deps.Logger)
		if err := add(filter, topics.EventFilter, []string{topics.EventStore}, i); err != nil {
			return nil, err
		}

		es := eventstore.New(deps.Store, publisher, &cfg.EventStore, topics.Alerts, deps.Logger)
		if err := add(es, topics.EventStore, nil, i); err != nil {
			return nil, err
		}
		s.archivers = append(s.archivers, es.Archiver())

		consumer, err := deps.Consumers(topics.Alerts, AlertsConsumer, i)
		if err != nil {
			return nil, fmt.Errorf("failed to create alerts consumer: %w", err)
		}
		s.consumers = append(s.consumers, consumer)
		s.sinks = append(s.sinks, notification.NewSink(consumer, deps.Notifier, deps.Logger))
	}

	return s, nil
}

// History returns a reader for alarm history.
func (s *Service) History() *archiver.Archiver {
	return s.archivers[0]
}

// Start runs every worker and sink until ctx is canceled.
// This is a blocking call; it returns once all of them have stopped.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting processor service", "runners", len(s.runners), "sinks", len(s.sinks))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(start func(context.Context) error) {
		defer wg.Done()
		if err := start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}

	for _, r := range s.runners {
		wg.Add(1)
		go run(r.Run)
	}
	for _, sink := range s.sinks {
		wg.Add(1)
		go run(sink.Start)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Stop closes every consumer.
func (s *Service) Stop() error {
	s.logger.Info("stopping processor service")
	var errs []error
	for _, c := range s.consumers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
