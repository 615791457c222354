// Package namenode runs the metadata service: a heartbeat acceptor that keeps
// the membership table current and a sequential control loop that answers
// client block-location requests.
package namenode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"minidfs/pkg/catalog"
	"minidfs/pkg/config"
	"minidfs/pkg/membership"
	"minidfs/pkg/metrics"
	"minidfs/pkg/placement"
	"minidfs/pkg/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

type Namenode struct {
	config *config.NamenodeConfig
	logger *zap.Logger

	members    *membership.Table
	catalog    *catalog.Catalog
	engine     *placement.Engine
	dispatcher *Dispatcher

	registry *prometheus.Registry
	metrics  *metrics.NamenodeMetrics

	clientListener    net.Listener
	heartbeatListener net.Listener

	// gRPC health service
	adminServer   *grpc.Server
	adminListener net.Listener
	health        *health.Server

	metricsServer   *http.Server
	metricsListener net.Listener

	wg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg *config.NamenodeConfig, logger *zap.Logger) (*Namenode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid namenode config: %w", err)
	}

	files, err := catalog.New(cfg.MaxFiles, uint64(cfg.BlockSize), cfg.MaxBlocksPerFile)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewNamenodeMetrics(registry)
	members := membership.NewTable(cfg.MaxDatanodes)
	engine := placement.NewEngine(members)

	ctx, cancel := context.WithCancel(context.Background())

	return &Namenode{
		config:     cfg,
		logger:     logger,
		members:    members,
		catalog:    files,
		engine:     engine,
		dispatcher: NewDispatcher(files, members, engine, m, logger),
		registry:   registry,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start binds every endpoint and runs the control loop until Stop.
func (n *Namenode) Start() error {
	if err := n.Listen(); err != nil {
		return err
	}
	return n.Serve()
}

// Listen binds the client, heartbeat, admin and metrics endpoints without
// accepting client connections yet.
func (n *Namenode) Listen() error {
	var err error

	n.heartbeatListener, err = net.Listen("tcp", n.config.HeartbeatAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.config.HeartbeatAddress, err)
	}

	n.clientListener, err = net.Listen("tcp", n.config.ClientAddress)
	if err != nil {
		n.heartbeatListener.Close()
		return fmt.Errorf("failed to listen on %s: %w", n.config.ClientAddress, err)
	}

	if err := n.startAdmin(); err != nil {
		n.closeListeners()
		return err
	}
	if err := n.startMetrics(); err != nil {
		n.Stop()
		return err
	}

	n.logger.Info("Namenode listening",
		zap.String("client_address", n.clientListener.Addr().String()),
		zap.String("heartbeat_address", n.heartbeatListener.Addr().String()),
		zap.Int64("block_size", int64(n.config.BlockSize)),
		zap.Int("max_datanodes", n.config.MaxDatanodes),
		zap.Int("max_files", n.config.MaxFiles),
		zap.Int("max_blocks_per_file", n.config.MaxBlocksPerFile))
	return nil
}

// Serve starts the heartbeat acceptor, waits out safe mode and then handles
// client connections one at a time.
func (n *Namenode) Serve() error {
	if n.clientListener == nil {
		return fmt.Errorf("namenode is not listening")
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.acceptHeartbeats()
	}()

	if !n.waitForDatanodes() {
		return nil
	}
	n.enterServing()

	for {
		conn, err := n.clientListener.Accept()
		if err != nil {
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			n.logger.Warn("Failed to accept client connection", zap.Error(err))
			continue
		}
		n.handleClient(conn)
	}
}

func (n *Namenode) Stop() {
	n.cancel()
	n.closeListeners()

	if n.health != nil {
		n.health.Shutdown()
	}
	if n.adminServer != nil {
		n.adminServer.Stop()
	}
	if n.metricsServer != nil {
		n.metricsServer.Close()
	}
	n.wg.Wait()
}

// waitForDatanodes blocks while the namenode is in safe mode. It returns false
// if the namenode is stopped first.
func (n *Namenode) waitForDatanodes() bool {
	if !n.members.SafeMode() {
		return true
	}

	ticker := time.NewTicker(n.config.SafeModePollInterval.Std())
	defer ticker.Stop()

	n.logger.Info("The namenode is running in safe mode")
	for {
		select {
		case <-n.ctx.Done():
			return false
		case <-n.members.Ready():
			return true
		case <-ticker.C:
			n.logger.Info("The namenode is running in safe mode")
		}
	}
}

func (n *Namenode) enterServing() {
	n.metrics.SafeMode.Set(0)
	n.setHealthServing()
	n.logger.Info("Leaving safe mode", zap.Int("live_datanodes", n.members.Count()))
}

func (n *Namenode) handleClient(conn net.Conn) {
	defer conn.Close()

	if timeout := n.config.RequestTimeout.Std(); timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}

	req, err := protocol.ReadRequest(conn)
	if err != nil {
		n.logger.Warn("Failed to read client request",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Error(err))
		n.metrics.Requests.WithLabelValues("unknown", "malformed").Inc()
		return
	}

	start := time.Now()
	result := n.dispatcher.Dispatch(req)
	if err := n.respond(conn, result); err != nil {
		n.logger.Warn("Failed to send response",
			zap.Stringer("op", req.Op),
			zap.String("file", req.FileName),
			zap.Error(err))
	}

	n.metrics.Requests.WithLabelValues(req.Op.String(), result.Kind.String()).Inc()
	n.metrics.RequestLatency.WithLabelValues(req.Op.String()).Observe(time.Since(start).Seconds())
}

func (n *Namenode) respond(conn net.Conn, result Result) error {
	switch result.Kind {
	case ResultDrop:
		return nil
	case ResultFile:
		return protocol.WriteFileResponse(conn, result.File)
	case ResultSystem:
		return protocol.WriteSystemResponse(conn, result.Cluster)
	default:
		return protocol.WriteStatus(conn, result.Status())
	}
}

func (n *Namenode) closeListeners() {
	for _, l := range []net.Listener{n.clientListener, n.heartbeatListener, n.adminListener, n.metricsListener} {
		if l != nil {
			l.Close()
		}
	}
}

func (n *Namenode) SafeMode() bool {
	return n.members.SafeMode()
}

func (n *Namenode) LiveDatanodes() int {
	return n.members.Count()
}

func (n *Namenode) Dispatcher() *Dispatcher {
	return n.dispatcher
}

func (n *Namenode) Registry() *prometheus.Registry {
	return n.registry
}

func (n *Namenode) ClientAddr() net.Addr {
	return n.clientListener.Addr()
}

func (n *Namenode) HeartbeatAddr() net.Addr {
	return n.heartbeatListener.Addr()
}
