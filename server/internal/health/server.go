package health

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service name reported alongside the overall status.
const ServiceName = "elizahub.Hub"

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
}

// New creates a Server with every service marked SERVING.
func New(opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: grpchealth.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis. It blocks until Shutdown is called or the
// listener fails; a Shutdown-initiated stop returns nil.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("gRPC health service listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Shutdown marks every service NOT_SERVING, then stops accepting new RPCs and
// waits for in-flight ones to finish.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	slog.Info("gRPC health service stopped")
}
