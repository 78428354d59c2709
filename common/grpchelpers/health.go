package grpchelpers

import (
	"net"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Addr is the host:port the grpc admin server listens on.
type Addr string

// DefaultHealthPoll is how often the health status is refreshed.
const DefaultHealthPoll = 100 * time.Millisecond

// HealthChecker decides the served status.
type HealthChecker interface {
	Healthy() bool
}

// HealthServer publishes a HealthChecker through the standard grpc health
// service, under service and the empty overall name. It also answers the
// reflection protocol so grpc_cli can list it.
type HealthServer struct {
	addr    Addr
	service string
	checker HealthChecker
	poll    time.Duration

	srv    *grpc.Server
	health *health.Server
}

func NewHealthServer(addr Addr, service string, checker HealthChecker, opt ...grpc.ServerOption) *HealthServer {
	h := &HealthServer{
		addr:    addr,
		service: service,
		checker: checker,
		poll:    DefaultHealthPoll,
		srv:     grpc.NewServer(opt...),
		health:  health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.srv, h.health)
	reflection.Register(h.srv)
	h.update()
	return h
}

// Serve listens on the configured address until ctx is done.
func (h *HealthServer) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", string(h.addr))
	if err != nil {
		return errors.Wrapf(err, "listening on %s", h.addr)
	}
	return h.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done.
func (h *HealthServer) ServeListener(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"addr": lis.Addr().String(), "service": h.service}).Info("Serving grpc health")
		errCh <- h.srv.Serve(lis)
	}()

	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.update()
		case err := <-errCh:
			return err
		case <-ctx.Done():
			h.srv.GracefulStop()
			return nil
		}
	}
}

func (h *HealthServer) update() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.checker.Healthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(h.service, status)
	h.health.SetServingStatus("", status)
}
