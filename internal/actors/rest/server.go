package rest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rbroggi/slotcast/internal/actors/metrics"
	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
	"golang.org/x/time/rate"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type identityUsecase interface {
	Register(ctx context.Context, args model.RegisterArgs) (*model.Identity, error)
	Login(ctx context.Context, uuid string) (*model.LoginResponse, error)
	Status(ctx context.Context, uuid, userName string) (bool, error)
	UpdateProfile(ctx context.Context, args model.UpdateProfileArgs) (*model.Identity, error)
	IssueToken(identity model.Identity) (string, error)
}

type slotUsecase interface {
	CreateSlot(ctx context.Context, args model.CreateSlotArgs) (*model.Slot, error)
	UpdateSlot(ctx context.Context, args model.UpdateSlotArgs) (*model.Slot, error)
}

type sessionUsecase interface {
	BookSlot(ctx context.Context, args model.BookSlotArgs) (*model.Session, error)
	ScheduleBroadcast(ctx context.Context, args model.ScheduleBroadcastArgs) (*model.Session, error)
	DeleteSession(ctx context.Context, args model.DeleteSessionArgs) error
	ListSessionsByDate(ctx context.Context, date time.Time) iter.Seq2[model.Session, error]
	AddAttendee(ctx context.Context, sessionID, identityUUID string) (*model.Session, error)
	RemoveAttendee(ctx context.Context, sessionID, identityUUID string) (*model.Session, error)
}

// ServerArgs contains the mandatory arguments for the Server.
type ServerArgs struct {
	Identities identityUsecase
	Slots      slotUsecase
	Sessions   sessionUsecase

	// Tokens verifies the bearer credentials of protected routes.
	Tokens ports.TokenVerifier
}

// ServerOptArgs are the optional arguments for building a Server.
type ServerOptArgs = func(*Server)

// WithRecorder records request metrics through recorder.
func WithRecorder(recorder metrics.Recorder) ServerOptArgs {
	return func(s *Server) {
		s.recorder = recorder
	}
}

// WithMetricsHandler exposes handler on GET /metrics.
func WithMetricsHandler(handler http.Handler) ServerOptArgs {
	return func(s *Server) {
		s.metricsHandler = handler
	}
}

// WithHealthClient exposes GET /healthz backed by the gRPC health service.
func WithHealthClient(client healthpb.HealthClient) ServerOptArgs {
	return func(s *Server) {
		s.healthClient = client
	}
}

// WithRateLimit allows every client ip rps requests per second, with bursts of burst requests.
func WithRateLimit(rps float64, burst int) ServerOptArgs {
	return func(s *Server) {
		s.limiter = newIPLimiter(rate.Limit(rps), burst)
	}
}

// WithTrustedProxyHeaders keys the rate limit on the client address reported by X-Forwarded-For
// and X-Real-Ip. Only enable it behind a proxy that sets those headers itself.
func WithTrustedProxyHeaders() ServerOptArgs {
	return func(s *Server) {
		s.limiterKey = clientIP
	}
}

// Default rate limit applied per client ip.
const (
	DefaultRateLimit = 10
	DefaultBurst     = 20
)

// Server is the JSON over HTTP surface of the bookings API.
type Server struct {
	identities identityUsecase
	slots      slotUsecase
	sessions   sessionUsecase
	tokens     ports.TokenVerifier

	recorder       metrics.Recorder
	metricsHandler http.Handler
	healthClient   healthpb.HealthClient
	limiter        *ipLimiter
	limiterKey     func(*http.Request) string

	validate *validator.Validate
	policy   *bluemonday.Policy

	handler http.Handler
}

// NewServer creates a new Server and registers every route.
func NewServer(args ServerArgs, optArgs ...ServerOptArgs) (*Server, error) {
	if args.Identities == nil || args.Slots == nil || args.Sessions == nil || args.Tokens == nil {
		return nil, errors.New("usecases and token verifier are mandatory")
	}

	s := &Server{
		identities: args.Identities,
		slots:      args.Slots,
		sessions:   args.Sessions,
		tokens:     args.Tokens,
		recorder:   metrics.Nop{},
		limiter:    newIPLimiter(DefaultRateLimit, DefaultBurst),
		limiterKey: remoteIP,
		validate:   newValidator(),
		policy:     bluemonday.StrictPolicy(),
	}
	for _, opt := range optArgs {
		opt(s)
	}

	muxOpts := []runtime.ServeMuxOption{runtime.WithRoutingErrorHandler(routingErrorHandler)}
	if s.healthClient != nil {
		muxOpts = append(muxOpts, runtime.WithHealthzEndpoint(s.healthClient))
	}
	mux := runtime.NewServeMux(muxOpts...)

	if err := s.registerRoutes(mux); err != nil {
		return nil, err
	}
	if s.metricsHandler != nil {
		err := mux.HandlePath(http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			s.metricsHandler.ServeHTTP(w, r)
		})
		if err != nil {
			return nil, fmt.Errorf("error registering metrics route: %w", err)
		}
	}

	s.handler = recoverPanic(logAccess(mux))
	return s, nil
}

var _ http.Handler = (*Server)(nil)

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// endpoint is a route handler. It returns the success message and payload, or an error that gets
// mapped to its kind.
type endpoint func(r *http.Request, pathParams map[string]string) (string, any, error)

func (s *Server) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		path    string
		handler endpoint
	}{
		{http.MethodPost, "/auth/register", s.register},
		{http.MethodPost, "/auth/login", s.login},
		{http.MethodPost, "/auth/status", s.authenticated(s.status)},
		{http.MethodPost, "/auth/update", s.authenticated(s.updateProfile)},
		{http.MethodPost, "/session/create", s.authenticated(s.createSession)},
		{http.MethodPost, "/session/delete", s.authenticated(s.deleteSession)},
		{http.MethodPost, "/session/add/user", s.authenticated(s.addAttendee)},
		{http.MethodPost, "/session/remove/user", s.authenticated(s.removeAttendee)},
		{http.MethodPost, "/session/sessions", s.authenticated(s.listSessions)},
		{http.MethodPost, "/session/mysessions", s.authenticated(notImplemented)},
		{http.MethodGet, "/session/{sessionId}", s.authenticated(notImplemented)},
		{http.MethodPost, "/slot/create", s.authenticated(s.createSlot)},
		{http.MethodPost, "/slot/update", s.authenticated(s.updateSlot)},
	}
	for _, route := range routes {
		if err := mux.HandlePath(route.method, route.path, s.serve(route.path, route.handler)); err != nil {
			return fmt.Errorf("error registering route [%s %s]: %w", route.method, route.path, err)
		}
	}
	return nil
}

// serve adapts an endpoint to the mux, applying the per-ip rate limit and recording metrics under
// the route pattern.
func (s *Server) serve(route string, handler endpoint) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		start := time.Now()
		rec := newStatusRecorder(w)
		defer func() {
			if p := recover(); p != nil {
				err := panicError(r, p)
				if !rec.written {
					writeError(rec, r, err)
				}
			}
			s.recorder.RecordRequest(route, rec.statusCode, time.Since(start))
		}()

		if !s.limiter.allow(s.limiterKey(r)) {
			s.recorder.RecordRateLimited(route)
			writeRateLimited(rec, s.limiter.limit)
			return
		}

		message, data, err := handler(r, pathParams)
		if err != nil {
			writeError(rec, r, err)
			return
		}
		writeSuccess(rec, message, data)
	}
}

func notImplemented(*http.Request, map[string]string) (string, any, error) {
	return "", nil, model.ErrNotImplemented
}
