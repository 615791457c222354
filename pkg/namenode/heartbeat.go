package namenode

import (
	"errors"
	"net"
	"time"

	"minidfs/pkg/protocol"
	"minidfs/pkg/types"

	"go.uber.org/zap"
)

const heartbeatReadTimeout = 10 * time.Second

// acceptHeartbeats runs for the life of the namenode. Each connection carries a
// single status record and is closed once it has been applied.
func (n *Namenode) acceptHeartbeats() {
	for {
		conn, err := n.heartbeatListener.Accept()
		if err != nil {
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			n.logger.Warn("Failed to accept heartbeat connection", zap.Error(err))
			continue
		}
		n.handleHeartbeat(conn)
	}
}

func (n *Namenode) handleHeartbeat(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(heartbeatReadTimeout))

	hb, err := protocol.ReadHeartbeat(conn)
	if err != nil {
		n.metrics.HeartbeatErrors.Inc()
		n.logger.Warn("Failed to read heartbeat",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Error(err))
		return
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	id := types.NodeID(hb.DatanodeID)
	ok, created := n.members.Register(id, host, hb.ListenPort)
	if !ok {
		n.metrics.RejectedNodes.Inc()
		n.logger.Warn("Ignoring heartbeat with out-of-range datanode id",
			zap.Int32("datanode_id", hb.DatanodeID),
			zap.Int("max_datanodes", n.members.Capacity()),
			zap.String("address", host))
		return
	}

	n.metrics.Heartbeats.Inc()
	n.metrics.LiveDatanodes.Set(float64(n.members.Count()))

	if created {
		n.logger.Info("Datanode registered",
			zap.Int32("datanode_id", hb.DatanodeID),
			zap.String("address", host),
			zap.Int32("port", hb.ListenPort))
		return
	}
	n.logger.Debug("Heartbeat received",
		zap.Int32("datanode_id", hb.DatanodeID),
		zap.String("address", host),
		zap.Int32("port", hb.ListenPort))
}
