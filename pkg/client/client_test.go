package client

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"minidfs/pkg/config"
	"minidfs/pkg/datanode"
	"minidfs/pkg/namenode"
	"minidfs/pkg/protocol"
	"minidfs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const mib uint64 = 1 << 20

func startCluster(t *testing.T, datanodes int) *Client {
	t.Helper()

	cfg := config.Default()
	cfg.Namenode.ClientAddress = "127.0.0.1:0"
	cfg.Namenode.HeartbeatAddress = "127.0.0.1:0"
	cfg.Namenode.AdminAddress = "127.0.0.1:0"
	cfg.Namenode.SafeModePollInterval = config.Duration(20 * time.Millisecond)

	nn, err := namenode.New(&cfg.Namenode, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, nn.Listen())
	done := make(chan error, 1)
	go func() { done <- nn.Serve() }()
	t.Cleanup(func() {
		nn.Stop()
		<-done
	})

	for id := 1; id <= datanodes; id++ {
		h, err := datanode.NewHeartbeater(config.DatanodeConfig{
			ID:                id,
			ListenPort:        7000 + id,
			NamenodeAddress:   nn.HeartbeatAddr().String(),
			HeartbeatInterval: config.Duration(time.Hour),
		}, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NoError(t, h.SendHeartbeat(context.Background()))
	}
	if datanodes > 0 {
		require.Eventually(t, func() bool { return nn.LiveDatanodes() == datanodes }, 2*time.Second, 10*time.Millisecond)
	}

	c, err := New(config.ClientConfig{
		NamenodeAddress: nn.ClientAddr().String(),
		AdminAddress:    nn.AdminAddr().String(),
		Timeout:         config.Duration(2 * time.Second),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func nodeIDs(file types.FileRecord) []types.NodeID {
	ids := make([]types.NodeID, 0, len(file.Blocks))
	for _, b := range file.Blocks {
		ids = append(ids, b.NodeID)
	}
	return ids
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(config.ClientConfig{}, nil)
	assert.Error(t, err)
}

func TestClientOperations(t *testing.T) {
	c := startCluster(t, 3)
	ctx := context.Background()

	file, err := c.GetFileReceivers(ctx, "a.txt", 150*mib)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", file.Name)
	assert.Equal(t, []types.NodeID{1, 2, 3}, nodeIDs(file))
	assert.Equal(t, "127.0.0.1", file.Blocks[0].Address)
	assert.Equal(t, int32(7001), file.Blocks[0].Port)

	file, err = c.GetFileUpdatePoint(ctx, "a.txt", 300*mib)
	require.NoError(t, err)
	assert.Equal(t, 5, file.BlockCount)
	assert.Equal(t, []types.NodeID{1, 2, 3, 1, 2}, nodeIDs(file))

	read, err := c.GetFileLocation(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, file, read)

	_, err = c.GetFileLocation(ctx, "missing.txt")
	assert.True(t, protocol.IsStatus(err, protocol.StatusNotFound), "got %v", err)

	_, err = c.GetFileUpdatePoint(ctx, "missing.txt", 1)
	assert.True(t, protocol.IsStatus(err, protocol.StatusNotFound), "got %v", err)

	snap, err := c.GetSystemInformation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.LiveCount)
	assert.Len(t, snap.Nodes, 3)

	status, err := c.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
}

func TestClientNameTooLong(t *testing.T) {
	c := startCluster(t, 1)

	_, err := c.GetFileReceivers(context.Background(), string(make([]byte, 300)), 1)
	assert.ErrorIs(t, err, protocol.ErrFieldTooLong)
}

func TestClientTimesOutInSafeMode(t *testing.T) {
	c := startCluster(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.GetSystemInformation(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	status, err := c.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
}

func TestClientUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	c, err := New(config.ClientConfig{NamenodeAddress: addr, Timeout: config.Duration(time.Second)}, nil)
	require.NoError(t, err)

	_, err = c.GetSystemInformation(context.Background())
	assert.Error(t, err)

	_, err = c.CheckHealth(context.Background())
	assert.Error(t, err, "no admin address configured")
}

func TestClientDroppedRequest(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	// Reads the request and hangs up without a reply.
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		protocol.ReadRequest(conn)
		conn.Close()
	}()

	c, err := New(config.ClientConfig{NamenodeAddress: lis.Addr().String(), Timeout: config.Duration(time.Second)}, nil)
	require.NoError(t, err)

	_, err = c.GetFileLocation(context.Background(), "x")
	assert.True(t, errors.Is(err, io.EOF), "got %v", err)
}
