// Package main boots the Catalog Import Service HTTP server and its
// ingestion pipeline.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/catalog-import-service/internal/blob"
	"github.com/fairyhunter13/catalog-import-service/internal/catalog"
	"github.com/fairyhunter13/catalog-import-service/internal/config"
	"github.com/fairyhunter13/catalog-import-service/internal/consumer"
	httpapi "github.com/fairyhunter13/catalog-import-service/internal/http"
	"github.com/fairyhunter13/catalog-import-service/internal/importer"
	"github.com/fairyhunter13/catalog-import-service/internal/obs"
	"github.com/fairyhunter13/catalog-import-service/internal/pubsub"
	"github.com/fairyhunter13/catalog-import-service/internal/queue"
	"github.com/fairyhunter13/catalog-import-service/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	obs.InitLogger()
	log.Info().Msg("service starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobStore, err := blob.New("import-bucket", cfg.BlobDir)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store init failed")
	}
	q := queue.New(cfg.VisibilityTimeout)
	q.SetHighWatermark(cfg.QueueHighWatermark)
	topic := pubsub.NewTopic("product-created")
	st := store.New()
	if cfg.SeedMockData {
		if err := st.Seed(ctx); err != nil {
			log.Fatal().Err(err).Msg("seed failed")
		}
		log.Info().Int("products", st.Len()).Msg("mock catalog seeded")
	}

	startSubscribers(ctx, topic, cfg.PriceAlertThreshold)

	dispatcher := importer.NewDispatcher(blobStore, q, cfg)
	go dispatcher.Run(ctx, blobStore.Notifications())

	runner := consumer.NewRunner(q, st, topic, cfg)
	go runner.Run(ctx)

	go sweepRetention(ctx, blobStore, cfg)

	issuer := importer.NewIssuer(cfg.UploadSecret, cfg.UploadTTL, cfg.IncomingPrefix, cfg.UploadExtension, cfg.PublicBaseURL)
	agg := catalog.NewAggregator(st)
	app := httpapi.NewApp(cfg, issuer, st, agg, q, blobStore)
	router := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	log.Info().Str("signal", s.String()).Msg("shutdown signal")

	q.CloseIntake()
	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := q.DrainUntil(ctxDrain); !drained {
		log.Warn().Int("queue_depth", q.Depth()).Msg("shutdown drain timeout")
	} else {
		log.Info().Msg("queue drained")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	cancel()
	log.Info().Msg("service stopped")
}

// startSubscribers attaches the two logical subscriber classes: one receiving
// every classification event and one receiving only high-value events.
func startSubscribers(ctx context.Context, topic *pubsub.Topic, threshold float64) {
	all := topic.Subscribe("product-created-all", 128, nil)
	highValue := topic.Subscribe("product-created-high-value", 128, pubsub.NumericGreaterThan{
		Attribute: consumer.AttrPrice,
		Threshold: threshold,
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-all:
				log.Info().Str("subject", ev.Subject).RawJSON("event", ev.Body).Msg("product event")
			case ev := <-highValue:
				log.Info().Str("subject", ev.Subject).RawJSON("event", ev.Body).
					Float64("price", ev.Attributes[consumer.AttrPrice]).Msg("high-value product event")
			}
		}
	}()
}

// sweepRetention periodically removes incoming uploads that were never
// processed within the retention window.
func sweepRetention(ctx context.Context, bs *blob.Store, cfg config.Config) {
	if cfg.IncomingRetention <= 0 {
		return
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			removed, err := bs.SweepIncoming(ctx, cfg.IncomingPrefix, cfg.IncomingRetention)
			if err != nil {
				log.Error().Err(err).Msg("retention sweep failed")
				continue
			}
			if removed > 0 {
				log.Info().Int("removed", removed).Msg("retention sweep complete")
			}
		}
	}
}
