package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	ObjectStore   ObjectStoreConfig
	Embeddings    EmbeddingsConfig
	Retrieval     RetrievalConfig
	Planner       PlannerConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects and configures the tabular sales store. Driver is
// either "duckdb" (default, optionally bootstrapped from Parquet files
// matching SeedGlob) or "postgres" (DSN via the pgx stdlib driver).
type StoreConfig struct {
	Driver       string
	DSN          string
	Table        string
	SeedGlob     string
	MaxOpenConns int
	MaxIdleConns int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type EmbeddingsConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type RetrievalConfig struct {
	DocsDir      string
	ObjectPrefix string
	ChunkSize    int
	TopK         int
	MinScore     float64
	CacheSize    int
}

type PlannerConfig struct {
	DefaultRowLimit    int
	DefaultTopN        int
	MaxGroups          int
	DistributionRowCap int
	ContextCharBudget  int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SALESCOPE_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SALESCOPE_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "SALESCOPE_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SALESCOPE_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SALESCOPE_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SALESCOPE_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_STORE_DRIVER", &cfg.Store.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_STORE_DSN", &cfg.Store.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_STORE_TABLE", &cfg.Store.Table); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_STORE_SEED_GLOB", &cfg.Store.SeedGlob); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_STORE_MAX_OPEN_CONNS", &cfg.Store.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_STORE_MAX_IDLE_CONNS", &cfg.Store.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SALESCOPE_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SALESCOPE_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SALESCOPE_EMBEDDINGS_ENABLED", &cfg.Embeddings.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_EMBEDDINGS_BASE_URL", &cfg.Embeddings.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_EMBEDDINGS_API_KEY", &cfg.Embeddings.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_EMBEDDINGS_MODEL", &cfg.Embeddings.Model); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SALESCOPE_EMBEDDINGS_TIMEOUT", &cfg.Embeddings.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_RETRIEVAL_DOCS_DIR", &cfg.Retrieval.DocsDir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESCOPE_RETRIEVAL_OBJECT_PREFIX", &cfg.Retrieval.ObjectPrefix); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_RETRIEVAL_CHUNK_SIZE", &cfg.Retrieval.ChunkSize); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_RETRIEVAL_TOP_K", &cfg.Retrieval.TopK); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "SALESCOPE_RETRIEVAL_MIN_SCORE", &cfg.Retrieval.MinScore); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_RETRIEVAL_CACHE_SIZE", &cfg.Retrieval.CacheSize); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_PLANNER_DEFAULT_ROW_LIMIT", &cfg.Planner.DefaultRowLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_PLANNER_DEFAULT_TOP_N", &cfg.Planner.DefaultTopN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_PLANNER_MAX_GROUPS", &cfg.Planner.MaxGroups); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_PLANNER_DISTRIBUTION_ROW_CAP", &cfg.Planner.DistributionRowCap); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESCOPE_PLANNER_CONTEXT_CHAR_BUDGET", &cfg.Planner.ContextCharBudget); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SALESCOPE_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "SALESCOPE_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	switch cfg.Store.Driver {
	case "duckdb", "postgres":
	default:
		return Config{}, fmt.Errorf("invalid SALESCOPE_STORE_DRIVER: %q", cfg.Store.Driver)
	}
	if cfg.Store.Table == "" {
		return Config{}, fmt.Errorf("store table is required")
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		return Config{}, fmt.Errorf("store dsn is required for the postgres driver")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "salescope-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			Driver:       "duckdb",
			Table:        "sales_data",
			SeedGlob:     "data/*.parquet",
			MaxOpenConns: 8,
			MaxIdleConns: 4,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "salescope",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Embeddings: EmbeddingsConfig{
			Enabled: false,
			BaseURL: "https://api.openai.com",
			Model:   "text-embedding-3-small",
			Timeout: 15 * time.Second,
		},
		Retrieval: RetrievalConfig{
			DocsDir:      "data/docs",
			ObjectPrefix: "",
			ChunkSize:    500,
			TopK:         3,
			MinScore:     0.2,
			CacheSize:    100,
		},
		Planner: PlannerConfig{
			DefaultRowLimit:    50,
			DefaultTopN:        5,
			MaxGroups:          100,
			DistributionRowCap: 5000,
			ContextCharBudget:  4000,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
