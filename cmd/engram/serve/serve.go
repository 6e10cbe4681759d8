// Package servecmder provides the serve command for running the engram
// recording API server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/engram/api"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/dedup"
	"github.com/papercomputeco/engram/pkg/embeddings"
	embeddingsnop "github.com/papercomputeco/engram/pkg/embeddings/nop"
	"github.com/papercomputeco/engram/pkg/embeddings/ollama"
	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/eventstream/kafka"
	eventstreamnop "github.com/papercomputeco/engram/pkg/eventstream/nop"
	"github.com/papercomputeco/engram/pkg/guard/cascade"
	"github.com/papercomputeco/engram/pkg/guard/idempotency"
	"github.com/papercomputeco/engram/pkg/guard/ratelimit"
	"github.com/papercomputeco/engram/pkg/hooks"
	"github.com/papercomputeco/engram/pkg/ingest"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/storage"
	"github.com/papercomputeco/engram/pkg/storage/inmemory"
	"github.com/papercomputeco/engram/pkg/storage/postgres"
	"github.com/papercomputeco/engram/pkg/storage/sqlite"
)

const serveLongDesc string = `Run the engram recording API server.

The server exposes the hook fire path and the batch ingestion pipeline over
HTTP. Storage, embedding, and stream providers come from the resolved
configuration (flags > environment > config.toml > defaults).`

const serveShortDesc string = "Run the engram recording server"

var serveFlags = config.FlagSet{
	config.FlagAPIListen:       {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for API server to listen on"},
	config.FlagStorageProvider: {Name: "storage-provider", ViperKey: "storage.provider", Description: "Storage backend (sqlite, postgres, memory)"},
	config.FlagSQLitePath:      {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	config.FlagPostgresURL:     {Name: "postgres", ViperKey: "storage.postgres_url", Description: "Postgres connection URL"},
	config.FlagLRUCacheSize:    {Name: "lru-cache-size", ViperKey: "ingest.lru_cache_size", Description: "Dedup cache size in entries"},
	config.FlagBatchSizeHint:   {Name: "batch-size", ViperKey: "ingest.batch_size_hint", Description: "Batch pipeline chunk size"},
	config.FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, none)"},
	config.FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	config.FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	config.FlagStreamProvider:  {Name: "stream-provider", ViperKey: "stream.provider", Description: "Event stream provider (kafka, none)"},
	config.FlagStreamBrokers:   {Name: "brokers", ViperKey: "stream.brokers", Description: "Kafka bootstrap broker addresses"},
	config.FlagStreamTopic:     {Name: "topic", ViperKey: "stream.topic", Description: "Kafka topic for recorded-event notifications"},
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagSQLitePath,
	config.FlagPostgresURL,
	config.FlagLRUCacheSize,
	config.FlagBatchSizeHint,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagStreamProvider,
	config.FlagStreamBrokers,
	config.FlagStreamTopic,
}

type ServeCommander struct {
	listen          string
	storageProvider string
	sqlitePath      string
	postgresURL     string
	lruCacheSize    int
	batchSize       int
	embeddingProv   string
	embeddingTgt    string
	embeddingModel  string
	streamProvider  string
	brokers         string
	topic           string
	debug           bool

	v      *viper.Viper
	logger *slog.Logger
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.v = v

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgresURL, &cmder.postgresURL)
	config.AddIntFlag(cmd, serveFlags, config.FlagLRUCacheSize, &cmder.lruCacheSize)
	config.AddIntFlag(cmd, serveFlags, config.FlagBatchSizeHint, &cmder.batchSize)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embeddingTgt)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddStringFlag(cmd, serveFlags, config.FlagStreamProvider, &cmder.streamProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagStreamBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagStreamTopic, &cmder.topic)

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithJSON(true))
	v := c.v

	store, err := c.newEventStore(ctx, v)
	if err != nil {
		return err
	}
	defer store.Close()

	dedupStore, err := dedup.NewStore(store, v.GetInt("ingest.lru_cache_size"), c.logger)
	if err != nil {
		return fmt.Errorf("creating dedup store: %w", err)
	}

	publisher, err := c.newPublisher(v)
	if err != nil {
		return err
	}
	defer publisher.Close()

	embedder := c.newEmbedder(v)
	defer embedder.Close()

	tracker := idempotency.NewTracker(
		time.Duration(v.GetInt("ingest.idempotency_window_seconds"))*time.Second,
		idempotency.DefaultMaxEntries,
	)

	limits := make(map[string]int)
	for hookID, limit := range v.GetStringMap("rate_limits") {
		if n, ok := limit.(int64); ok {
			limits[hookID] = int(n)
		} else if n, ok := limit.(int); ok {
			limits[hookID] = n
		}
	}
	limiter := ratelimit.NewLimiter(time.Minute, limits)

	monitor := cascade.NewMonitor(v.GetInt("cascade.max_depth"), v.GetInt("cascade.max_breadth"))

	dispatcher, err := hooks.NewDispatcher(hooks.Config{
		Dedup:     dedupStore,
		Tracker:   tracker,
		Limiter:   limiter,
		Monitor:   monitor,
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	registerBuiltinHooks(dispatcher)

	pipeline, err := ingest.NewPipeline(ingest.Config{
		Dedup:         dedupStore,
		Embedder:      embedder,
		EmbedTimeout:  time.Duration(v.GetInt("embedding.timeout_seconds")) * time.Second,
		BatchSizeHint: v.GetInt("ingest.batch_size_hint"),
		Publisher:     publisher,
		Logger:        c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	server := api.NewServer(api.Config{
		ListenAddr: v.GetString("api.listen"),
	}, dispatcher, pipeline, store, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

func (c *ServeCommander) newEventStore(ctx context.Context, v *viper.Viper) (storage.EventStore, error) {
	switch provider := v.GetString("storage.provider"); provider {
	case "postgres":
		store, err := postgres.NewStore(ctx, v.GetString("storage.postgres_url"))
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres store: %w", err)
		}
		c.logger.Info("using Postgres storage")
		return store, nil

	case "sqlite":
		path := v.GetString("storage.sqlite_path")
		store, err := sqlite.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", path)
		return store, nil

	case "memory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage provider: %q", provider)
	}
}

func (c *ServeCommander) newPublisher(v *viper.Viper) (eventstream.Publisher, error) {
	switch provider := v.GetString("stream.provider"); provider {
	case "kafka":
		publisher, err := kafka.NewPublisher(kafka.Config{
			Brokers: v.GetStringSlice("stream.brokers"),
			Topic:   v.GetString("stream.topic"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
		}
		c.logger.Info("publishing recorded events to Kafka",
			"brokers", v.GetStringSlice("stream.brokers"),
			"topic", v.GetString("stream.topic"),
		)
		return publisher, nil

	case "none", "":
		return eventstreamnop.NewPublisher(), nil

	default:
		return nil, fmt.Errorf("unknown stream provider: %q", provider)
	}
}

func (c *ServeCommander) newEmbedder(v *viper.Viper) embeddings.Embedder {
	if v.GetString("embedding.provider") != "ollama" {
		return embeddingsnop.NewEmbedder()
	}

	embedder, err := ollama.NewEmbedder(ollama.EmbedderConfig{
		BaseURL: v.GetString("embedding.target"),
		Model:   v.GetString("embedding.model"),
		Timeout: time.Duration(v.GetInt("embedding.timeout_seconds")) * time.Second,
	})
	if err != nil {
		c.logger.Warn("failed to create Ollama embedder, events persist without embeddings", "error", err)
		return embeddingsnop.NewEmbedder()
	}

	c.logger.Info("enriching events with Ollama embeddings",
		"target", v.GetString("embedding.target"),
		"model", v.GetString("embedding.model"),
	)
	return embedder
}
