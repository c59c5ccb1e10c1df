package grpcapp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"passport/internal/app/interceptors"
	"passport/internal/lib/logger/sl"
	"passport/internal/lib/utilities"
)

// ServiceName is the health service reported for the whole passport
const ServiceName = "passport"

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	log        *slog.Logger
	gRPCServer *grpc.Server
	health     *health.Server
	probes     map[string]Pinger
	interval   time.Duration
	timeout    time.Duration
	port       int
	done       chan struct{}
	stopOnce   sync.Once
}

// New creates new gRPC server app serving the health protocol
func New(
	env string,
	log *slog.Logger,
	probes map[string]Pinger,
	interval time.Duration,
	timeout time.Duration,
	port int,
) *App {
	gRPCServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		interceptors.EnvUnaryInterceptor(env),
		interceptors.MetadataInterceptor(log),
		accessLog(log),
	))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gRPCServer, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &App{
		log:        log,
		gRPCServer: gRPCServer,
		health:     hs,
		probes:     probes,
		interval:   interval,
		timeout:    timeout,
		port:       port,
		done:       make(chan struct{}),
	}
}

// MustRun runs gRPC server and panic if any occurs
func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

// Run grpc server
func (a *App) Run() error {
	const op = "grpcapp.Run"

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return a.Serve(l)
}

// Serve starts the prober and serves on l until Stop
func (a *App) Serve(l net.Listener) error {
	const op = "grpcapp.Serve"

	log := a.log.With(slog.String("op", op), slog.Int("port", a.port))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-a.done
		cancel()
	}()
	a.probe(ctx)
	go a.probeLoop(ctx)

	log.Info("starting gRPC server", slog.String("addr", l.Addr().String()))

	if err := a.gRPCServer.Serve(l); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop grpc server
func (a *App) Stop() {
	const op = "grpcapp.Stop"

	a.log.With(slog.String("op", op)).Info("stopping gRPC server")
	a.stopOnce.Do(func() { close(a.done) })
	a.health.Shutdown()
	a.gRPCServer.GracefulStop()
}

func (a *App) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.probe(ctx)
		}
	}
}

// probe marks every dependency and the overall service as serving or not
func (a *App) probe(ctx context.Context) {
	const op = "grpcapp.probe"
	log := a.log.With(slog.String("op", op))

	overall := healthpb.HealthCheckResponse_SERVING
	for name, p := range a.probes {
		pctx, cancel := context.WithTimeout(ctx, a.timeout)
		err := p.Ping(pctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			log.Warn("dependency unhealthy", slog.String("probe", name), sl.Err(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
		}
		a.health.SetServingStatus(name, status)
	}
	a.health.SetServingStatus(ServiceName, overall)
	a.health.SetServingStatus("", overall)
}

func accessLog(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("rpc completed",
			slog.String("method", info.FullMethod),
			slog.String("code", status.Code(err).String()),
			slog.String("client_ip", utilities.ClientIPFromContext(ctx)),
			slog.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
