package grpc

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/inamkkkk/take-it-and-go/pkg/log"
)

// ServiceName is the name reported by the health service.
const ServiceName = "chat.ChatService"

// Server is the operations gRPC endpoint. It serves only grpc.health.v1.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	addr   string
}

func StartGRPCServer(addr string, logger zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer(
		grpc.UnaryInterceptor(log.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(log.StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	go func() {
		l := log.L()
		l.Info().Str("address", addr).Msg("chat grpc server listening")
		if err := s.Serve(lis); err != nil {
			l.Error().Err(err).Msg("grpc server error")
		}
	}()

	return &Server{grpc: s, health: hs, addr: lis.Addr().String()}, nil
}

// Drain marks every service NOT_SERVING so load balancers stop routing new
// connections here.
func (s *Server) Drain() {
	s.health.Shutdown()
}

// Addr is the address the server is bound to.
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}
