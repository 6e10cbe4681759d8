// Package ingestcmder provides the `engram ingest` CLI command.
package ingestcmder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/dedup"
	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/ingest"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/storage"
	"github.com/papercomputeco/engram/pkg/storage/postgres"
	"github.com/papercomputeco/engram/pkg/storage/sqlite"
)

const ingestLongDesc string = `Bulk-ingest episodic events from a JSON file.

The file holds either a JSON array of events or one JSON event per line.
Events run through the full batch pipeline: in-batch dedup, content hashing,
store dedup, enrichment, and one transactional insert.

Examples:
  engram ingest events.json
  engram ingest --sqlite ./engram.db session-dump.jsonl`

const ingestShortDesc string = "Bulk-ingest events from a JSON file"

type ingestCommander struct {
	sqlitePath  string
	postgresURL string
}

// NewIngestCmd creates the ingest cobra command.
func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.Context(), cmd, args[0], configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database")
	cmd.Flags().StringVar(&cmder.postgresURL, "postgres", "", "Postgres connection URL")

	return cmd
}

func (c *ingestCommander) run(ctx context.Context, cmd *cobra.Command, path, configDir string) error {
	v, err := config.InitViper(configDir)
	if err != nil {
		return err
	}

	events, err := readEvents(path)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events found in %s", path)
	}

	store, err := c.newEventStore(ctx, v)
	if err != nil {
		return err
	}
	defer store.Close()

	dedupStore, err := dedup.NewStore(store, v.GetInt("ingest.lru_cache_size"), logger.Nop())
	if err != nil {
		return fmt.Errorf("creating dedup store: %w", err)
	}

	pipeline, err := ingest.NewPipeline(ingest.Config{
		Dedup:         dedupStore,
		BatchSizeHint: v.GetInt("ingest.batch_size_hint"),
		Logger:        logger.Nop(),
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	var report *ingest.BatchReport
	err = cliui.Step(cmd.OutOrStdout(), fmt.Sprintf("Ingesting %d events", len(events)), func() error {
		var perr error
		report, perr = pipeline.Process(ctx, events)
		return perr
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
	return nil
}

// readEvents parses the input file as either a JSON array or one JSON
// object per line.
func readEvents(path string) ([]*event.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var events []*event.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return events, nil
	}

	var events []*event.Event
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		e := &event.Event{}
		if err := json.Unmarshal([]byte(line), e); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return events, nil
}

func (c *ingestCommander) newEventStore(ctx context.Context, v *viper.Viper) (storage.EventStore, error) {
	if c.postgresURL != "" {
		return postgres.NewStore(ctx, c.postgresURL)
	}

	path := c.sqlitePath
	if path == "" {
		path = v.GetString("storage.sqlite_path")
	}

	return sqlite.NewStore(path)
}
