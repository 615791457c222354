// Package datanode implements the datanode side of membership: a periodic
// heartbeat that registers the node with the namenode.
package datanode

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"minidfs/pkg/config"
	"minidfs/pkg/protocol"

	"go.uber.org/zap"
)

const dialTimeout = 5 * time.Second

// Heartbeater sends a status record to the namenode's heartbeat port on every
// tick. Failures are logged and retried on the next tick.
type Heartbeater struct {
	id              int32
	listenPort      int32
	namenodeAddress string
	interval        time.Duration
	logger          *zap.Logger

	mu                  sync.Mutex
	lastHeartbeat       time.Time
	consecutiveFailures int
	sent                int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHeartbeater(cfg config.DatanodeConfig, logger *zap.Logger) (*Heartbeater, error) {
	if cfg.ID <= 0 {
		return nil, fmt.Errorf("datanode id must be positive, got %d", cfg.ID)
	}
	if cfg.ListenPort <= 0 || cfg.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid listen port %d", cfg.ListenPort)
	}
	if cfg.NamenodeAddress == "" {
		return nil, fmt.Errorf("namenode heartbeat address is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("heartbeat interval must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Heartbeater{
		id:              int32(cfg.ID),
		listenPort:      int32(cfg.ListenPort),
		namenodeAddress: cfg.NamenodeAddress,
		interval:        cfg.HeartbeatInterval.Std(),
		logger:          logger.With(zap.Int("datanode_id", cfg.ID)),
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// Start sends the first heartbeat immediately and then one per interval until
// Stop is called.
func (h *Heartbeater) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.heartbeatLoop()
	}()

	h.logger.Info("Datanode heartbeat started",
		zap.String("namenode", h.namenodeAddress),
		zap.Int32("listen_port", h.listenPort),
		zap.Duration("interval", h.interval))
}

func (h *Heartbeater) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *Heartbeater) heartbeatLoop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeater) beat() {
	err := h.SendHeartbeat(h.ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		if h.ctx.Err() != nil {
			return
		}
		h.consecutiveFailures++
		h.logger.Warn("Failed to send heartbeat",
			zap.Error(err),
			zap.Int("attempt", h.consecutiveFailures),
			zap.Duration("since_last", time.Since(h.lastHeartbeat)))
		return
	}

	if h.consecutiveFailures > 0 {
		h.logger.Info("Heartbeat delivered after failures", zap.Int("failures", h.consecutiveFailures))
	}
	h.consecutiveFailures = 0
	h.lastHeartbeat = time.Now()
	h.sent++
}

// SendHeartbeat delivers a single status record.
func (h *Heartbeater) SendHeartbeat(ctx context.Context) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", h.namenodeAddress)
	if err != nil {
		return fmt.Errorf("failed to connect to namenode: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	}

	if err := protocol.WriteHeartbeat(conn, protocol.Heartbeat{
		DatanodeID: h.id,
		ListenPort: h.listenPort,
	}); err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}

	h.logger.Debug("Heartbeat sent", zap.String("namenode", h.namenodeAddress))
	return nil
}

// Stats reports heartbeats delivered and the current run of failures.
func (h *Heartbeater) Stats() (sent, consecutiveFailures int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent, h.consecutiveFailures
}
