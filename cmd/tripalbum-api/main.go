// README: Entry point; loads config, wires services, starts HTTP server and background schedulers.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tripalbum/internal/config"
	httptransport "tripalbum/internal/http"
	"tripalbum/internal/infra"
	"tripalbum/internal/maps"
	"tripalbum/internal/media"
	"tripalbum/internal/modules/album"
	"tripalbum/internal/modules/location"
	"tripalbum/internal/modules/recommendation"
	"tripalbum/internal/modules/trip"
	"tripalbum/internal/modules/upload"
	"tripalbum/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("tripalbum-api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DB.Migrate {
		if err := infra.Migrate(cfg.DB.DSN, logger); err != nil {
			return err
		}
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var geocoder location.Geocoder = maps.NopGeocoder{}
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocoder(maps.GeocoderConfig{
			APIKey:   cfg.Maps.APIKey,
			Language: cfg.Maps.Language,
			CacheTTL: time.Duration(cfg.Maps.CacheTTLMinutes) * time.Minute,
		}, logger.Named("geocoder"))
		if err != nil {
			return err
		}
		geocoder = g
	} else {
		logger.Warn("TRIPALBUM_MAPS_API_KEY not set; trips will be labelled without place names")
	}

	if cfg.Env != "development" && cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	owner := types.ID(cfg.Media.UserID)
	albumStore := album.NewStore(dbPool)
	mediaIndex := media.NewDirIndex(cfg.Media.Root, logger.Named("media"))

	locationSvc := location.NewService(location.NewStore(dbPool), geocoder, logger.Named("location"))
	detector := trip.NewDetector(mediaIndex, geocoder, logger.Named("detector"))
	tripSvc := trip.NewService(trip.ServiceDeps{
		UserID:   owner,
		Detector: detector,
		Albums:   albumStore,
		Homes:    locationSvc,
		Store:    trip.NewStore(redisClient),
		Config:   cfg.Trips,
		Log:      logger.Named("trips"),
	})
	orchestrator := upload.NewOrchestrator(owner, albumStore, mediaIndex, tripSvc, logger.Named("upload"))
	recommendationSvc := recommendation.NewService(albumStore, logger.Named("recommendation"))

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Trips:           tripSvc,
		Albums:          orchestrator,
		Recommendations: recommendationSvc,
		Log:             logger.Named("http"),
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go tripSvc.RunScheduler(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr), zap.String("media_root", cfg.Media.Root))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
