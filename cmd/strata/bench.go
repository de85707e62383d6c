/*
strata bench is a throughput microbenchmark over pkg/docstore: it
provisions a throwaway model, writes --count documents sequentially,
and reports ops/sec plus p50/p99 create latency, following the same
flags/RunE/plain-stdout-report shape as the other subcommands, applied
to the one hot path this module actually has reason to measure.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/indexkey"
	"github.com/cuemby/strata/pkg/kvstore/boltkv"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure docstore.Store.Create throughput",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().String("data-dir", "", "Data directory; defaults to a temp directory removed on exit")
	benchCmd.Flags().Int("count", 10000, "Number of documents to create")
}

const benchModel = "bench_record"
const benchTopic = "bench"

func benchSchema() (*dataunit.Schema, error) {
	return dataunit.NewSchema(benchModel,
		dataunit.Field(1, "seq", dataunit.TypeInt64).WithRequired(),
		dataunit.Field(2, "payload", dataunit.TypeBytes),
	)
}

func runBench(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	count, _ := cmd.Flags().GetInt("count")
	if count <= 0 {
		return fmt.Errorf("--count must be positive")
	}

	if dataDir == "" {
		tmp, err := os.MkdirTemp("", "strata-bench-*")
		if err != nil {
			return fmt.Errorf("creating temp data dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dataDir = tmp
	}

	db, err := boltkv.Open(dataDir, "bench.db")
	if err != nil {
		return fmt.Errorf("opening data store: %w", err)
	}
	defer db.Close()

	schema, err := benchSchema()
	if err != nil {
		return fmt.Errorf("building schema: %w", err)
	}
	bySeq, err := indexkey.NewIndexSpec("by_seq", schema, "seq")
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}

	store := docstore.New(db)
	model := &docstore.Model{Name: benchModel, Schema: schema, Indexes: []*indexkey.IndexSpec{bySeq}}
	if err := store.EnsureModel(context.Background(), model); err != nil {
		return fmt.Errorf("provisioning model: %w", err)
	}

	payload := make([]byte, 128)
	latencies := make([]time.Duration, count)

	ctx := context.Background()
	started := time.Now()
	for i := 0; i < count; i++ {
		u := dataunit.New(schema)
		if err := u.Set(1, int64(i)); err != nil {
			return fmt.Errorf("setting seq: %w", err)
		}
		if err := u.Set(2, payload); err != nil {
			return fmt.Errorf("setting payload: %w", err)
		}
		opStart := time.Now()
		if _, err := store.Create(ctx, benchModel, benchTopic, u); err != nil {
			return fmt.Errorf("create #%d: %w", i, err)
		}
		latencies[i] = time.Since(opStart)
	}
	elapsed := time.Since(started)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Printf("created %d documents in %s\n", count, elapsed)
	fmt.Printf("throughput: %.0f ops/sec\n", float64(count)/elapsed.Seconds())
	fmt.Printf("p50: %s  p99: %s  max: %s\n",
		latencies[count/2],
		latencies[count*99/100],
		latencies[count-1],
	)
	return nil
}
