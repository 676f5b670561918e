package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-pg/pg/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/rbroggi/slotcast/internal/actors/avatar"
	grpcactor "github.com/rbroggi/slotcast/internal/actors/grpc"
	"github.com/rbroggi/slotcast/internal/actors/jwt"
	"github.com/rbroggi/slotcast/internal/actors/livepeer"
	"github.com/rbroggi/slotcast/internal/actors/memory"
	"github.com/rbroggi/slotcast/internal/actors/metrics"
	mongoactor "github.com/rbroggi/slotcast/internal/actors/mongo"
	postgresactor "github.com/rbroggi/slotcast/internal/actors/postgres"
	produceractor "github.com/rbroggi/slotcast/internal/actors/pubsub/producer"
	"github.com/rbroggi/slotcast/internal/actors/rest"
	"github.com/rbroggi/slotcast/internal/config"
	"github.com/rbroggi/slotcast/internal/core/ports"
	"github.com/rbroggi/slotcast/internal/core/usecase"
	log "github.com/sirupsen/logrus"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)
}

var (
	envFile    = flag.String("env-file", "", "optional dotenv file loaded before reading the environment")
	grpcServer = flag.String("grpc-server-endpoint", "", "gRPC server endpoint, overrides GRPC_ADDR")
	httpServer = flag.String("http-server-endpoint", "", "HTTP server endpoint, overrides HTTP_ADDR")
)

// openRepository connects the storage selected by STORAGE_DRIVER. The returned func releases it.
func openRepository(ctx context.Context, cfg *config.Config) (ports.Repository, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn("using in-memory storage, data will not survive a restart")
		return memory.NewStore(), func() {}, nil

	case config.StoragePostgres:
		opts, err := pg.ParseURL(cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("error parsing postgres url: %w", err)
		}
		db := pg.Connect(opts)
		if err := db.Ping(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("postgres does not appear to be reachable: %w", err)
		}
		repo, err := postgresactor.NewPostgresDB(postgresactor.PostgresDBArgs{DB: db})
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, func() { _ = db.Close() }, nil

	default:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to mongo: %w", err)
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		if err := client.Ping(ctx, nil); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("mongo does not appear to be reachable: %w", err)
		}
		database := client.Database(cfg.MongoDatabase)
		repo, err := mongoactor.NewMongoDB(mongoactor.MongoDBArgs{
			IdentityCollection: database.Collection("identities"),
			SlotCollection:     database.Collection("slots"),
			SessionCollection:  database.Collection("sessions"),
		})
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return repo, closeFn, nil
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *grpcServer != "" {
		cfg.GRPCAddr = *grpcServer
	}
	if *httpServer != "" {
		cfg.HTTPAddr = *httpServer
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.StorageDriver).Error("could not open storage")
		return err
	}
	defer closeRepo()

	var sender ports.Sender
	if cfg.PubSubEnabled {
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			return fmt.Errorf("error creating pubsub client: %w", err)
		}
		defer client.Close()
		topic := client.Topic(cfg.PubSubEventTopic)
		defer topic.Stop()
		producer, err := produceractor.NewProducer(topic)
		if err != nil {
			return err
		}
		sender = producer
	}

	tokens, err := jwt.NewTokens(jwt.TokensArgs{Secret: cfg.AccessTokenSecret})
	if err != nil {
		return err
	}
	streams := livepeer.NewClient(livepeer.ClientArgs{
		HTTPClient: &http.Client{},
		APIKey:     cfg.LivepeerAPIKey,
	}, livepeer.WithEndpoint(cfg.LivepeerEndpoint))

	identityOpts := []usecase.IdentityServiceOptArgs{usecase.WithIdentitySender(sender)}
	if images := avatar.ParseList(cfg.AvatarImages); len(images) > 0 {
		identityOpts = append(identityOpts, usecase.WithAvatarSource(avatar.NewStatic(images)))
	}
	identities := usecase.NewIdentityService(usecase.IdentityServiceArgs{Repository: repo, TokenIssuer: tokens}, identityOpts...)
	slots := usecase.NewSlotService(usecase.SlotServiceArgs{Repository: repo, Sender: sender})
	sessions := usecase.NewSessionService(usecase.SessionServiceArgs{
		Sessions:   repo,
		Slots:      repo,
		Identities: repo,
		Streams:    streams,
	}, usecase.WithStreamTimeout(cfg.StreamTimeout), usecase.WithSessionSender(sender))

	// gRPC: health and reflection
	healthService := grpcactor.NewHealthService(grpcactor.HealthServiceArgs{Storage: repo}, grpcactor.WithInterval(cfg.HealthCheckTick))
	go healthService.Run(ctx)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthService)
	reflection.Register(grpcSrv)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.WithError(err).Error("grpc server stopped")
			cancel()
		}
	}()

	conn, err := grpc.Dial(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("error dialing own grpc endpoint: %w", err)
	}
	defer conn.Close()

	// HTTP: JSON API, healthz and metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	restOpts := []rest.ServerOptArgs{
		rest.WithHealthClient(healthpb.NewHealthClient(conn)),
		rest.WithRecorder(metrics.NewCollector(registry)),
		rest.WithMetricsHandler(metrics.Handler(registry)),
		rest.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	if cfg.TrustProxyHeaders {
		restOpts = append(restOpts, rest.WithTrustedProxyHeaders())
	}
	api, err := rest.NewServer(rest.ServerArgs{
		Identities: identities,
		Slots:      slots,
		Sessions:   sessions,
		Tokens:     tokens,
	}, restOpts...)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
			cancel()
		}
	}()

	log.
		WithField("http-server-addr", cfg.HTTPAddr).
		WithField("grpc-server-addr", cfg.GRPCAddr).
		WithField("storage", cfg.StorageDriver).
		WithField("pubsub", cfg.PubSubEnabled).
		Info("servers up or soon to be up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the server")

	// Wait for signal
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	select {
	case <-ch:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server did not shut down cleanly")
	}
	cancel()
	grpcSrv.GracefulStop()

	return nil
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
