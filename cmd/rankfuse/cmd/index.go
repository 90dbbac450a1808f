package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rankfuse/rankfuse/internal/store"
)

type indexOptions struct {
	batchSize int
}

// indexDocument is the JSONL ingestion format, one document per line.
type indexDocument struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func newIndexCmd() *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index <corpus.jsonl>",
		Short: "Ingest a JSONL corpus into the keyword and dense indexes",
		Long: `Index reads documents from a JSONL file (one JSON object per
line with "id", "title", "body", and optional "metadata") and writes
them to the document store, the keyword index, and the dense vector
index. Sparse term vectors are generated separately with
"rankfuse sparse-gen" so a slow model never blocks ingestion.

Re-indexing an existing ID replaces it in every index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 64, "Documents per commit batch")

	return cmd
}

func runIndex(cmd *cobra.Command, path string, opts *indexOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	eng, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()

	start := time.Now()
	total := 0
	batch := make([]*store.Document, 0, opts.batchSize)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := indexBatch(cmd, eng, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		fmt.Fprintf(cmd.OutOrStdout(), "\rIndexed %d documents...", total)
		return nil
	}

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc indexDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse %s line %d: %w", path, line, err)
		}
		if doc.ID == "" {
			return fmt.Errorf("%s line %d: missing document id", path, line)
		}
		now := time.Now()
		batch = append(batch, &store.Document{
			ID:        doc.ID,
			Title:     doc.Title,
			Body:      doc.Body,
			Metadata:  doc.Metadata,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if len(batch) >= opts.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read corpus %s: %w", path, err)
	}
	if err := flush(); err != nil {
		return err
	}

	densePath := filepath.Join(cfg.Store.DataDir, denseIndexFile)
	if err := eng.dense.Save(densePath); err != nil {
		return fmt.Errorf("save dense index: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\rIndexed %d documents in %s\n", total, time.Since(start).Round(time.Millisecond))
	fmt.Fprintln(cmd.OutOrStdout(), `Run "rankfuse sparse-gen" to generate sparse vectors for the new documents.`)
	return nil
}

// indexBatch commits one batch to the document store, the keyword
// index, and the dense index. The document store is written first so a
// partial failure is always re-indexable.
func indexBatch(cmd *cobra.Command, eng *engine, docs []*store.Document) error {
	ctx := cmd.Context()

	if err := eng.docs.SaveDocuments(ctx, docs); err != nil {
		return fmt.Errorf("save documents: %w", err)
	}
	if err := eng.keyword.Index(ctx, docs); err != nil {
		return fmt.Errorf("index keyword batch: %w", err)
	}

	texts := make([]string, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.SearchText()
		ids[i] = d.ID
	}
	vectors, err := eng.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if err := eng.dense.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("index dense batch: %w", err)
	}
	return nil
}
