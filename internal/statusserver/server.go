// Package statusserver publishes the head-unit session state over the
// standard gRPC health checking protocol.
package statusserver

import (
	"fmt"
	"log"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dense-identity/applink/internal/applink"
)

// ServiceName is the health service reporting the head-unit session
const ServiceName = "applink.Session"

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	lis        net.Listener
}

// New listens on addr and registers the health service. The session starts
// out NOT_SERVING.
func New(addr string) (*Server, error) {
	// Make sure the port has a leading ":" when only a port is given
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{grpcServer: grpcServer, health: hs, lis: lis}, nil
}

// Addr is the bound listen address
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Serve blocks until Stop is called
func (s *Server) Serve() error {
	log.Printf("[Status] gRPC health listening at %s", s.Addr())
	if err := s.grpcServer.Serve(s.lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Report maps a session snapshot onto the health status
func (s *Server) Report(st applink.Status) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if st.Connected && st.ShutdownReason == "" {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Stop marks every service NOT_SERVING and stops the server
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
