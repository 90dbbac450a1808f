//go:build ignore

// Generates a synthetic JSONL corpus for load-testing the index and
// search pipeline.
// Usage: go run scripts/generate-corpus.go -docs 10000 -output corpus.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

var (
	numDocs = flag.Int("docs", 10000, "Number of documents to generate")
	output  = flag.String("output", "corpus.jsonl", "Output JSONL file")
	seed    = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"authentication", "caching", "pagination", "rate limiting",
	"logging", "retries", "migrations", "serialization",
	"connection pooling", "configuration", "scheduling", "encryption",
}

var verbs = []string{
	"configure", "debug", "implement", "optimize", "migrate",
	"benchmark", "monitor", "deploy", "validate", "troubleshoot",
}

var technical = []string{
	"ERR_TIMEOUT", "handler.go", "getUserById", "TCP_NODELAY",
	"max_connections", "retryBackoff", "0x7f", "ENOENT", "http.Client",
	"context.Context", "sync.Pool", "io.Reader",
}

var fillers = []string{
	"The service reads its settings at startup and watches for changes.",
	"Requests above the limit receive a backoff hint in the response.",
	"Each worker drains its queue before the pool shuts down.",
	"State is committed in batches so a crash never loses more than one.",
	"The default values suit most deployments and rarely need tuning.",
	"Failures are isolated per backend so one outage degrades gracefully.",
}

type document struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", *output, err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	for i := 0; i < *numDocs; i++ {
		topic := topics[rng.Intn(len(topics))]
		verb := verbs[rng.Intn(len(verbs))]

		var body strings.Builder
		paragraphs := 2 + rng.Intn(4)
		for p := 0; p < paragraphs; p++ {
			sentences := 2 + rng.Intn(3)
			for s := 0; s < sentences; s++ {
				body.WriteString(fillers[rng.Intn(len(fillers))])
				body.WriteByte(' ')
			}
			// Roughly a third of paragraphs mention a technical token
			// so technical queries have something to find.
			if rng.Intn(3) == 0 {
				fmt.Fprintf(&body, "See %s for details. ", technical[rng.Intn(len(technical))])
			}
			body.WriteByte('\n')
		}

		doc := document{
			ID:    fmt.Sprintf("doc-%06d", i),
			Title: fmt.Sprintf("How to %s %s", verb, topic),
			Body:  body.String(),
			Metadata: map[string]string{
				"topic": topic,
			},
		}
		if err := enc.Encode(doc); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
	}

	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d documents to %s\n", *numDocs, *output)
}
