// salescope-seed generates a synthetic superstore-style dataset and writes
// it as parquet, either to a local file or into the configured object
// store bucket. The API server's DuckDB bootstrap picks local files up via
// its seed glob.
package main

import (
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/salescope/salescope/internal/config"
	"github.com/salescope/salescope/internal/dataset"
	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/storage"
	s3store "github.com/salescope/salescope/internal/storage/s3"
)

func main() {
	var (
		out    = flag.String("out", "data/sales.parquet", "output parquet path")
		rows   = flag.Int("rows", 10000, "number of order records")
		months = flag.Int("months", 24, "number of months to spread orders over")
		seed   = flag.Int64("seed", 42, "random seed")
		upload = flag.Bool("upload", false, "also upload to the configured object store")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv("salescope-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	generator := dataset.NewGenerator(*seed, time.Now().UTC(), *months)
	records := generator.Generate(*rows)

	if err := dataset.WriteParquetFile(*out, records); err != nil {
		logger.Error("failed to write dataset", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("dataset written", slog.String("path", *out), slog.Int("rows", len(records)))

	if !*upload {
		return
	}

	data, err := dataset.EncodeParquet(records)
	if err != nil {
		logger.Error("failed to encode dataset", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	objectStore, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to open object store", slog.Any("error", err))
		os.Exit(1)
	}

	key := "datasets/sales.parquet"
	info, err := objectStore.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		logger.Error("failed to upload dataset", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("dataset uploaded", slog.String("key", info.Key), slog.Int64("bytes", info.Size))
}
