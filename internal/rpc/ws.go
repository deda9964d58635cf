package rpc

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// heartbeatInterval is how often the status stream pushes a fresh
// ClusterStatusResponse to a connected peer/dashboard. This stream is
// peer-facing, distinct from the client-facing REST endpoints.
const heartbeatInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The heartbeat stream is consumed by peers/dashboards on the same
	// deployment, never a third-party origin; AtlasDB has no browser CORS
	// surface to defend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// heartbeatAck is the wire shape returned for every push the stream sends.
type heartbeatAck struct {
	From      string `json:"from"`
	Timestamp uint64 `json:"timestamp"`
	Height    uint64 `json:"height"`
	Term      uint64 `json:"term"`
	Role      string `json:"role"`
}

// handleHeartbeatStream upgrades to a websocket connection and pushes a
// periodic status snapshot until the client disconnects or the server
// shuts down. Unlike the gossip Heartbeat (consensus/messages.go), this is
// a read-only liveness/status feed for explorers and CLI `status --watch`,
// not a consensus-affecting message.
func (s *Server) handleHeartbeatStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("rpc: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		status := s.svc.GetClusterStatus()
		ack := heartbeatAck{
			From:      status.LeaderId,
			Timestamp: uint64(time.Now().UnixMilli()),
			Height:    status.Height,
			Term:      status.Term,
			Role:      status.Role,
		}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
	}
}
