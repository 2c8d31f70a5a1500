package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/events"
	"github.com/tenderhub/extraction-pipeline/internal/extraction"
	"github.com/tenderhub/extraction-pipeline/internal/llm"
	"github.com/tenderhub/extraction-pipeline/internal/queue"
	"github.com/tenderhub/extraction-pipeline/internal/storage"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/internal/worker"
	"github.com/tenderhub/extraction-pipeline/pkg/log"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		zap.S().Fatalw("reading configuration", "error", err)
	}

	logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger := log.InitLog(logLvl)
	defer func() { _ = logger.Sync() }()

	undo := zap.ReplaceGlobals(logger)
	defer undo()

	zap.S().Info("Starting extraction worker")
	defer zap.S().Info("Extraction worker stopped")

	db, err := store.InitDB(cfg)
	if err != nil {
		zap.S().Fatalw("initializing data store", "error", err)
	}

	s := store.NewStore(db)
	defer s.Close()

	q := queue.NewRedisQueue(cfg)
	defer q.Close()

	st, err := storage.NewFromConfig(cfg)
	if err != nil {
		zap.S().Fatalw("initializing storage", "error", err)
	}
	if ms, ok := st.(*storage.MinioStorage); ok {
		if err := ms.EnsureBucket(context.Background()); err != nil {
			zap.S().Fatalw("ensuring storage bucket", "error", err)
		}
	}

	producerOpts := []events.ProducerOptions{}
	if cfg.Service.Kafka.Topic != "" {
		producerOpts = append(producerOpts, events.WithOutputTopic(cfg.Service.Kafka.Topic))
	}
	producer := events.NewEventProducer(newEventWriter(cfg), producerOpts...)
	defer func() { _ = producer.Close() }()

	task := extraction.NewTask(
		st,
		llm.NewClient(cfg),
		&llm.KeywordSelector{},
		extraction.NewSlidingChunker(cfg.Worker.ChunkSize, cfg.Worker.ChunkOverlap),
		cfg.Worker.MaxChunksPerFile,
	)
	aggregator := extraction.NewAggregator(s)
	finalizer := worker.NewFinalizer(s, q, aggregator, producer, cfg.Worker.MaxRetryAttempts, cfg.Worker.RetryBaseDelay)
	consumer := worker.NewConsumer(cfg, s, q, task, aggregator, finalizer)
	sweeper := worker.NewSweeper(cfg, s, finalizer)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		zap.S().Fatalw("worker exited with error", "error", err)
	}
}

func newEventWriter(cfg *config.Config) events.Writer {
	if len(cfg.Service.Kafka.Brokers) > 0 {
		saramaCfg, err := cfg.Service.Kafka.SaramaConfig()
		if err != nil {
			zap.S().Errorw("invalid kafka configuration, falling back to stdout", "error", err)
			return &events.StdoutWriter{}
		}
		w, err := events.NewKafkaWriter(cfg.Service.Kafka.Brokers, saramaCfg)
		if err == nil {
			return w
		}
		zap.S().Errorw("failed to create kafka writer, falling back to stdout", "error", err)
	}
	return &events.StdoutWriter{}
}
