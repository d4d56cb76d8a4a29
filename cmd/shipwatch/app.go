package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"shipwatch/config"
	"shipwatch/internal/broker/kafka"
	"shipwatch/internal/cache/rediscache"
	"shipwatch/internal/integrations/usps"
	"shipwatch/internal/integrations/usps/uspsfake"
	"shipwatch/internal/notify/kafkanotify"
	"shipwatch/internal/services/reconcile"
	"shipwatch/internal/storage/pgorder"
)

// orderStorage is what the worker needs from the order store: the engine's
// read/write surface plus the admin bulk action exposed over HTTP.
type orderStorage interface {
	reconcile.OrderStore
	UpdateOrdersStatus(ctx context.Context, ids []uint64, status string) (int64, error)
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (st orderStorage, closeFn func(), err error)
	newNotifier    func(cfg *config.Config) *kafkanotify.Notifier
	newCursorStore func(cfg *config.Config) reconcile.CursorStore
	newRateLimiter func(cfg *config.Config) reconcile.RateLimiter
	newTracker     func(cfg *config.Config) usps.Tracker
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (orderStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgorder.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newNotifier: func(cfg *config.Config) *kafkanotify.Notifier {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafkanotify.New(kafka.NewProducer(brokers), kafkanotify.Topics{
				Dispatched:     cfg.Kafka.DispatchedTopic,
				OutForDelivery: cfg.Kafka.OutForDeliveryTopic,
				Delivered:      cfg.Kafka.DeliveredTopic,
				Completed:      cfg.Kafka.CompletedTopic,
				StatusObserved: cfg.Kafka.StatusObservedTopic,
			})
		},
		newCursorStore: func(cfg *config.Config) reconcile.CursorStore {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			clearTTL := time.Duration(cfg.Shipwatch.CursorClearTTLSeconds) * time.Second
			return rediscache.NewCursorStore(rediscache.New(redisAddr), cfg.Shipwatch.CursorKey, clearTTL)
		},
		newRateLimiter: func(cfg *config.Config) reconcile.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newTracker: func(cfg *config.Config) usps.Tracker {
			// Режим "fake" для демо без учётки USPS.
			if cfg.Shipwatch.USPSMode == "fake" {
				return uspsfake.New()
			}
			timeout := time.Duration(cfg.Shipwatch.USPSTimeoutSeconds) * time.Second
			return usps.New(cfg.Shipwatch.USPSEndpoint, cfg.Shipwatch.USPSUserID, timeout)
		},
	}
}

func RunWorker(ctx context.Context, cfg *config.Config, f workerFactories, onListen func(addr string)) error {
	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	notifier := f.newNotifier(cfg)
	cursor := f.newCursorStore(cfg)
	rl := f.newRateLimiter(cfg)
	tracker := f.newTracker(cfg)

	userID := cfg.Shipwatch.USPSUserID
	if userID == "" && cfg.Shipwatch.USPSMode == "fake" {
		userID = "demo"
	}

	engine := reconcile.New(st, tracker, notifier, cursor, rl, reconcile.Config{
		USPSUserID:                userID,
		Carrier:                   cfg.Shipwatch.Carrier,
		DomesticCountry:           cfg.Shipwatch.DomesticCountry,
		LoggingEnabled:            cfg.Shipwatch.LoggingEnabled,
		MarkStaleOverseasComplete: cfg.Shipwatch.MarkStaleOverseasCompleteEnabled(),
		CandidateStatuses:         cfg.Shipwatch.CandidateStatuses,
		ReturnedStatus:            cfg.Shipwatch.ReturnedStatus,
		RateLimitPerMinute:        int64(cfg.Shipwatch.RateLimitPerMinute),
	}, reconcile.NewPhaseLists(cfg.Shipwatch.NotPickedUpStatuses, cfg.Shipwatch.PickedUpStatuses))

	followupDelay := time.Duration(cfg.Shipwatch.FollowupDelaySeconds) * time.Second
	runner := reconcile.NewRunner(engine, cfg.Shipwatch.CycleCron, followupDelay)

	errCh := make(chan error, 2)
	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.Shipwatch.HTTPAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			onListen:    onListen,
			runner:      runner,
			storage:     st,
			cfg:         cfg,
		})
		if err == http.ErrServerClosed {
			err = nil
		}
		errCh <- err
	}()
	go func() {
		errCh <- runner.Run(ctx)
	}()

	// Первый же сбой (или отмена контекста) завершает воркер целиком.
	return <-errCh
}
