// Package client talks to a namenode: the four block-location operations over
// the binary request protocol and a health check over gRPC.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"minidfs/pkg/config"
	"minidfs/pkg/protocol"
	"minidfs/pkg/types"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// HealthServiceName matches the service the namenode registers with its
// gRPC health server.
const HealthServiceName = "minidfs.Namenode"

// Client opens one connection per request; the namenode closes each
// connection after replying.
type Client struct {
	address      string
	adminAddress string
	timeout      time.Duration
	logger       *zap.Logger
}

func New(cfg config.ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.NamenodeAddress == "" {
		return nil, fmt.Errorf("namenode address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		address:      cfg.NamenodeAddress,
		adminAddress: cfg.AdminAddress,
		timeout:      cfg.Timeout.Std(),
		logger:       logger,
	}, nil
}

// GetFileLocation returns the block list of an existing file.
func (c *Client) GetFileLocation(ctx context.Context, name string) (types.FileRecord, error) {
	var file types.FileRecord
	err := c.roundTrip(ctx, protocol.Request{Op: protocol.OpRead, FileName: name}, func(r io.Reader) error {
		var err error
		file, err = protocol.ReadFileResponse(r)
		return err
	})
	return file, err
}

// GetFileReceivers asks where to write the blocks of a file of the given size.
func (c *Client) GetFileReceivers(ctx context.Context, name string, size uint64) (types.FileRecord, error) {
	var file types.FileRecord
	err := c.roundTrip(ctx, protocol.Request{Op: protocol.OpWrite, FileName: name, FileSize: size}, func(r io.Reader) error {
		var err error
		file, err = protocol.ReadFileResponse(r)
		return err
	})
	return file, err
}

// GetFileUpdatePoint grows an existing file to size and returns its blocks.
func (c *Client) GetFileUpdatePoint(ctx context.Context, name string, size uint64) (types.FileRecord, error) {
	var file types.FileRecord
	err := c.roundTrip(ctx, protocol.Request{Op: protocol.OpModify, FileName: name, FileSize: size}, func(r io.Reader) error {
		var err error
		file, err = protocol.ReadFileResponse(r)
		return err
	})
	return file, err
}

func (c *Client) GetSystemInformation(ctx context.Context) (types.ClusterSnapshot, error) {
	var snap types.ClusterSnapshot
	err := c.roundTrip(ctx, protocol.Request{Op: protocol.OpStatus}, func(r io.Reader) error {
		var err error
		snap, err = protocol.ReadSystemResponse(r)
		return err
	})
	return snap, err
}

// CheckHealth queries the namenode's gRPC health service.
func (c *Client) CheckHealth(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	if c.adminAddress == "" {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("admin address is not configured")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn, err := grpc.NewClient(c.adminAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("failed to dial %s: %w", c.adminAddress, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthServiceName})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return healthpb.HealthCheckResponse_SERVICE_UNKNOWN, nil
		}
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed: %w", err)
	}
	return resp.Status, nil
}

func (c *Client) roundTrip(ctx context.Context, req protocol.Request, decode func(io.Reader) error) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("failed to connect to namenode: %w", err)
	}
	defer conn.Close()

	// unblock the exchange once ctx is done
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	c.logger.Debug("Sending request",
		zap.Stringer("op", req.Op),
		zap.String("file", req.FileName),
		zap.Uint64("size", req.FileSize))

	if err := protocol.WriteRequest(conn, req); err != nil {
		return fmt.Errorf("%s request: %w", req.Op, err)
	}
	if err := decode(conn); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s request: %w", req.Op, ctx.Err())
		}
		return fmt.Errorf("%s response: %w", req.Op, err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
