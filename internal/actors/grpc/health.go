package grpc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name the booking service reports its health under.
const ServiceName = "slotcast.v1.Bookings"

// Pinger is anything whose reachability decides the serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServiceArgs are the mandatory args to instantiate the HealthService.
type HealthServiceArgs struct {
	// Storage is checked on every tick.
	Storage Pinger
}

// HealthServiceOptArgs are the optional arguments for building a HealthService.
type HealthServiceOptArgs = func(*HealthService)

// WithInterval overrides the 5s default interval between checks.
func WithInterval(interval time.Duration) HealthServiceOptArgs {
	return func(h *HealthService) {
		h.interval = interval
	}
}

// NewHealthService creates a new HealthService. Everything starts NOT_SERVING until the first check.
func NewHealthService(args HealthServiceArgs, optArgs ...HealthServiceOptArgs) *HealthService {
	h := &HealthService{
		Server:   health.NewServer(),
		storage:  args.Storage,
		interval: 5 * time.Second,
	}
	for _, opt := range optArgs {
		opt(h)
	}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// HealthService implements grpc.health.v1.Health, backed by a storage ping loop.
type HealthService struct {
	*health.Server
	storage  Pinger
	interval time.Duration
}

// CheckNow runs a single storage ping and updates the serving status accordingly.
func (h *HealthService) CheckNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()
	if err := h.storage.Ping(ctx); err != nil {
		log.WithError(err).Warn("storage ping failed, reporting NOT_SERVING")
		h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.setStatus(healthpb.HealthCheckResponse_SERVING)
}

// Run checks the storage every interval until ctx is done, then reports NOT_SERVING for good.
// This is a blocking method and should be started in it's own go-routine.
func (h *HealthService) Run(ctx context.Context) {
	h.CheckNow(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-ticker.C:
			h.CheckNow(ctx)
		}
	}
}

func (h *HealthService) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus("", status)
	h.SetServingStatus(ServiceName, status)
}
