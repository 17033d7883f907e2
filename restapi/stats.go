package restapi

import (
	"net/http"

	"github.com/rancher/go-rancher/api"
	"github.com/rancher/go-rancher/client"
)

// GetStats implements `GET /v1/stats`, exposing the process-wide
// statistics counters over HTTP (grounded on controller/rest/stats.go's
// ListJournal).
func (s *Server) GetStats(rw http.ResponseWriter, req *http.Request) error {
	snap := s.Stats.Snapshot()
	apiContext := api.GetApiContext(req)
	apiContext.Write(&StatsOutput{
		Resource:          client.Resource{Id: "stats", Type: "stats"},
		OpenReads:         snap.OpenReads,
		OpenReadFailures:  snap.OpenReadFailures,
		OpenWrites:        snap.OpenWrites,
		OpenWriteFailures: snap.OpenWriteFailures,
		Removes:           snap.Removes,
		Links:             snap.Links,
		Derefs:            snap.Derefs,
		Timeouts:          snap.Timeouts,
		PeerDeaths:        snap.PeerDeaths,
		ReuseCacheHits:    snap.ReuseCacheHits,
		ReuseCacheMisses:  snap.ReuseCacheMisses,
		BytesRead:         snap.BytesRead,
		BytesWritten:      snap.BytesWritten,
	})
	return nil
}
