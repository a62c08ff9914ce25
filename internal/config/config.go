// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration knobs for the HTTP server, the blob store, the
// ingestion queue, and the batch consumer.
type Config struct {
	HTTPAddr        string
	PublicBaseURL   string
	ShutdownTimeout time.Duration

	BlobDir           string
	IncomingPrefix    string
	ProcessedPrefix   string
	UploadExtension   string
	UploadTTL         time.Duration
	UploadSecret      string
	ImportAuthToken   string
	IncomingRetention time.Duration

	BatchSize          int
	PollWait           time.Duration
	VisibilityTimeout  time.Duration
	QueueHighWatermark int

	PriceAlertThreshold float64
	SeedMockData        bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatenv(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL:   getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),

		BlobDir:           getenv("BLOB_DIR", "data/blobs"),
		IncomingPrefix:    getenv("INCOMING_PREFIX", "uploaded/"),
		ProcessedPrefix:   getenv("PROCESSED_PREFIX", "parsed/"),
		UploadExtension:   getenv("UPLOAD_EXTENSION", ".csv"),
		UploadTTL:         durenvs("UPLOAD_TTL", 3600),
		UploadSecret:      getenv("UPLOAD_SECRET", "dev-upload-secret"),
		ImportAuthToken:   getenv("IMPORT_AUTH_TOKEN", ""),
		IncomingRetention: durenvs("INCOMING_RETENTION", 24*3600),

		BatchSize:          atoienv("BATCH_SIZE", 5),
		PollWait:           durenvms("POLL_WAIT_MS", 200),
		VisibilityTimeout:  durenvs("VISIBILITY_TIMEOUT", 30),
		QueueHighWatermark: atoienv("QUEUE_HIGH_WATERMARK", 5000),

		PriceAlertThreshold: floatenv("PRICE_ALERT_THRESHOLD", 1000),
		SeedMockData:        boolenv("SEED_MOCK_DATA", false),
	}
}
