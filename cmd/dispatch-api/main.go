// README: Entry point; loads config, wires services, starts HTTP server and the sweep scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/config"
	"ridedispatch/internal/events"
	httptransport "ridedispatch/internal/http"
	"ridedispatch/internal/infra"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/maps"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/trip"
	"ridedispatch/internal/notify"
	"ridedispatch/internal/scheduler"
	"ridedispatch/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("DISPATCH_FIREBASE_PROJECT_ID is required")
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.WithError(err).Fatal("firebase init")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		log.WithError(err).Fatal("firebase auth init")
	}

	var (
		tripStore   trip.Store
		driverStore driver.Store
		stations    pricing.StationStore
	)
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.WithError(err).Fatal("postgres init")
		}
		defer pool.Close()
		tripStore = trip.NewPostgresStore(pool)
		driverStore = driver.NewPostgresStore(pool)
		stations = pricing.NewPostgresStationStore(pool)
	} else {
		log.Warn("DISPATCH_DB_DSN not set, using in-memory store")
		mem := trip.NewMemoryStore()
		tripStore = mem
		driverStore = mem.Drivers()
		stations = pricing.MapStationStore{}
		if cfg.Seed.File != "" {
			data, err := seed.Load(cfg.Seed.File)
			if err != nil {
				log.WithError(err).Fatal("seed load")
			}
			stations = data.Apply(mem, time.Now().UTC())
			log.WithFields(logrus.Fields{
				"stations": len(data.Stations),
				"drivers":  len(data.Drivers),
			}).Info("in-memory store seeded")
		} else {
			log.Warn("DISPATCH_SEED_FILE not set, in-memory store starts without stations or drivers")
		}
	}
	if cfg.DB.DSN != "" && cfg.Seed.File != "" {
		log.Warn("DISPATCH_SEED_FILE ignored with a database configured")
	}

	var (
		redisClient *redis.Client
		geoIndex    driver.GeoIndex
		lease       scheduler.Lease
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			log.WithError(err).Fatal("redis init")
		}
		defer redisClient.Close()
		geoIndex = driver.NewRedisGeoIndex(redisClient)
		host, _ := os.Hostname()
		lease = scheduler.NewRedisLease(redisClient, scheduler.DefaultLeaseKey, host, scheduler.LeaseTTL(cfg.Dispatch.SweepInterval))
	}

	opts := []trip.Option{trip.WithLogger(log)}

	var notifiers trip.MultiNotifier
	msgClient, err := infra.NewMessaging(ctx, app)
	if err != nil {
		log.WithError(err).Warn("fcm unavailable, assignment pushes disabled")
	} else {
		notifiers = append(notifiers, notify.NewFCMNotifier(msgClient, driverStore, log))
	}
	var simulator *trip.Simulator
	if cfg.Dispatch.Simulate {
		simulator = trip.NewSimulator(trip.WithSimulatorLogger(log))
		notifiers = append(notifiers, simulator)
		log.Warn("simulated driver responses enabled")
	}
	if len(notifiers) > 0 {
		opts = append(opts, trip.WithNotifier(notifiers))
	}

	var publisher trip.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}
	opts = append(opts, trip.WithPublisher(publisher))

	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Warn("maps unavailable, pickup ETA uses straight-line distance")
		} else {
			opts = append(opts, trip.WithRouteEstimator(routes))
		}
	}

	matcher := matching.NewService(driverStore, cfg.Dispatch.LocationMaxAge)
	prices := pricing.NewService(stations, cfg.Tariff, cfg.Location)
	trips := trip.NewService(tripStore, matcher, prices, trip.Config{
		AssignTimeout: cfg.Dispatch.AssignTimeout,
		MaxAttempts:   cfg.Dispatch.MaxAttempts,
	}, opts...)
	if simulator != nil {
		simulator.Attach(trips)
	}
	drivers := driver.NewService(driverStore, geoIndex, log)

	runner := scheduler.NewRunner(trips, lease, cfg.Dispatch.SweepInterval, log)
	go runner.Run(ctx)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Trips:    trips,
		Drivers:  drivers,
		Verifier: verifier,
		Log:      log,
	})
	srv := httptransport.NewServer(cfg.HTTP.Addr, router)
	if err := httptransport.Serve(ctx, srv, cfg.HTTP.ShutdownTimeout, log); err != nil {
		log.WithError(err).Fatal("http server")
	}
	log.Info("shutdown complete")
}
