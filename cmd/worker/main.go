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
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcactor "github.com/rbroggi/slotcast/internal/actors/grpc"
	produceractor "github.com/rbroggi/slotcast/internal/actors/pubsub/producer"
	subscriberactor "github.com/rbroggi/slotcast/internal/actors/pubsub/subscriber"
	"github.com/rbroggi/slotcast/internal/config"
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
	envFile            = flag.String("env-file", "", "optional dotenv file loaded before reading the environment")
	grpcServerEndpoint = flag.String("grpc-server-endpoint", "localhost:50052", "gRPC server endpoint")
	httpServerEndpoint = flag.String("http-server-endpoint", "localhost:8081", "HTTP server endpoint")
)

// subscriptionPinger reports the worker healthy while its subscription exists.
type subscriptionPinger struct {
	subscription *pubsub.Subscription
}

func (p subscriptionPinger) Ping(ctx context.Context) error {
	exists, err := p.subscription.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("subscription [%s] does not exist", p.subscription.ID())
	}
	return nil
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
	if err != nil {
		return err
	}
	defer client.Close()

	topic := client.Topic(cfg.PubSubPublicTopic)
	defer topic.Stop()
	producer, err := produceractor.NewProducer(topic)
	if err != nil {
		return err
	}

	informer := usecase.NewInformer(producer)

	subscription := client.Subscription(cfg.PubSubEventSubscription)
	subscriber := subscriberactor.NewSubscriber(subscriberactor.SubscriberArgs{
		EventHandler: informer,
		Subscription: subscription,
	})

	// start subscriber
	go func(ctx context.Context) {
		if err := subscriber.Consume(ctx); err != nil {
			log.WithError(err).Error("subscriber stopped")
			cancel()
		}
	}(ctx)

	healthService := grpcactor.NewHealthService(
		grpcactor.HealthServiceArgs{Storage: subscriptionPinger{subscription: subscription}},
		grpcactor.WithInterval(cfg.HealthCheckTick),
	)
	go healthService.Run(ctx)

	lis, err := net.Listen("tcp", *grpcServerEndpoint)
	if err != nil {
		return err
	}

	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, healthService)

	// Register reflection service on gRPC server.
	reflection.Register(s)

	// Start gRPC server
	go func() {
		if err := s.Serve(lis); err != nil {
			log.WithError(err).Error("grpc server stopped")
			cancel()
		}
	}()

	conn, err := grpc.Dial(*grpcServerEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	mux := runtime.NewServeMux(runtime.WithHealthzEndpoint(healthpb.NewHealthClient(conn)))
	httpSrv := &http.Server{Addr: *httpServerEndpoint, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	// start http-gateway server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
			cancel()
		}
	}()

	log.
		WithField("http-server-addr", *httpServerEndpoint).
		WithField("grpc-server-addr", *grpcServerEndpoint).
		WithField("subscription", cfg.PubSubEventSubscription).
		WithField("public-topic", cfg.PubSubPublicTopic).
		Info("servers up or soon to be up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the server")

	// Wait for signal
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	select {
	case <-ch:
	case <-ctx.Done():
	}

	// Stop server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
	s.GracefulStop()

	return nil
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.WithError(err).Fatal("worker exited")
	}
}
