package namenode

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"minidfs/pkg/metrics"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the gRPC health service name reported by the namenode.
const HealthServiceName = "minidfs.Namenode"

// startAdmin serves the standard gRPC health service. Both the server-wide
// status and HealthServiceName report NOT_SERVING until safe mode ends.
func (n *Namenode) startAdmin() error {
	if n.config.AdminAddress == "" {
		return nil
	}

	lis, err := net.Listen("tcp", n.config.AdminAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.config.AdminAddress, err)
	}

	n.adminListener = lis
	n.adminServer = grpc.NewServer()
	n.health = health.NewServer()
	n.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	n.health.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(n.adminServer, n.health)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.adminServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			n.logger.Error("Admin server failed", zap.Error(err))
		}
	}()

	n.logger.Info("Admin server listening", zap.String("address", lis.Addr().String()))
	return nil
}

func (n *Namenode) setHealthServing() {
	if n.health == nil {
		return
	}
	n.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	n.health.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_SERVING)
}

// startMetrics serves /metrics and the /health endpoints over HTTP.
func (n *Namenode) startMetrics() error {
	if n.config.MetricsAddress == "" {
		return nil
	}

	lis, err := net.Listen("tcp", n.config.MetricsAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.config.MetricsAddress, err)
	}

	mux := http.NewServeMux()
	metrics.NewHealthEndpoint(n, n.registry, n.logger).RegisterHandlers(mux)

	n.metricsListener = lis
	n.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.metricsServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	n.logger.Info("Metrics server listening", zap.String("address", lis.Addr().String()))
	return nil
}

func (n *Namenode) AdminAddr() net.Addr {
	if n.adminListener == nil {
		return nil
	}
	return n.adminListener.Addr()
}

func (n *Namenode) MetricsAddr() net.Addr {
	if n.metricsListener == nil {
		return nil
	}
	return n.metricsListener.Addr()
}
