package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/ingest"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

const defaultBatchSize = 500

// newIngestCmd creates the 'ingest' subcommand, which feeds a JSON Lines file
// of hot-list rows through the ingestion pipeline for one source.
func newIngestCmd() *cobra.Command {
	var (
		source    string
		file      string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingests a JSON Lines file of items for one source",
		Long: `Reads one JSON object per line (title, url, platform, position,
hot_value, extra) and writes them through the ingestion pipeline in
batches. Use --file - to read from stdin.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			in, closeIn, err := openInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeIn()

			total := ingest.BatchResult{Source: source}
			err = readItems(in, batchSize, func(items []radar.Item) error {
				res, err := appInstance.IngestBatch(cmd.Context(), items, source)
				if err != nil {
					return fmt.Errorf("ingest batch: %w", err)
				}
				total.Collection = res.Collection
				total.Inserted += res.Inserted
				total.Updated += res.Updated
				total.Skipped += res.Skipped
				total.Dropped += res.Dropped
				return nil
			})
			if err != nil {
				return err
			}
			appInstance.Logger().Info("ingest finished",
				zap.String("source", source),
				zap.Int("inserted", total.Inserted),
				zap.Int("updated", total.Updated),
			)
			return writeJSON(cmd.OutOrStdout(), total)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "registered source name")
	cmd.Flags().StringVar(&file, "file", "-", "JSON Lines input file, - for stdin")
	cmd.Flags().IntVar(&batchSize, "batch-size", defaultBatchSize, "items per pipeline batch")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path) //nolint:gosec // operator-supplied input path
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// readItems decodes JSON Lines from r and hands them to fn in batches of size.
// Blank lines are skipped.
func readItems(r io.Reader, size int, fn func([]radar.Item) error) error {
	if size <= 0 {
		size = defaultBatchSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	batch := make([]radar.Item, 0, size)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var item radar.Item
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return fmt.Errorf("decode line %d: %w", line, err)
		}
		batch = append(batch, item)
		if len(batch) == size {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]radar.Item, 0, size)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read input: %w", err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
