package restapi

import (
	"github.com/jiva-cluster/ccrpc/clusterstats"
	"github.com/jiva-cluster/ccrpc/liveness"
)

// Server is the restapi handler receiver, grounded on replica/rest/model.go's
// Server{s *replica.Server}: a thin wrapper over the collaborators the
// handlers need, never the collaborators themselves.
type Server struct {
	Stats *clusterstats.Counters
	Peers *liveness.PeerTable
}

// NewServer builds a Server over the node's stats counters and peer table.
func NewServer(stats *clusterstats.Counters, peers *liveness.PeerTable) *Server {
	return &Server{Stats: stats, Peers: peers}
}
