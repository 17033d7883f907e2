// Package restapi exposes the stats/debug HTTP surface over a running
// node: a rancher/go-rancher schema-driven `/v1/...` API (grounded on
// controller/rest/router.go and replica/rest/model.go) plus a prometheus
// `/metrics` endpoint serving the default registry; clusterstats.Counters
// are served at `/v1/stats` and are not registered with prometheus.
package restapi

import (
	"github.com/rancher/go-rancher/client"
)

// StatsOutput is the `/v1/stats` resource body, a thin client.Resource
// wrapper around clusterstats.Snapshot matching jiva's pattern of
// embedding client.Resource in every schema-addressable type
// (replica/rest/model.go's Replica, DeleteReplicaOutput, etc).
type StatsOutput struct {
	client.Resource
	OpenReads        int64 `json:"openReads"`
	OpenReadFailures int64 `json:"openReadFailures"`
	OpenWrites       int64 `json:"openWrites"`
	OpenWriteFailures int64 `json:"openWriteFailures"`
	Removes          int64 `json:"removes"`
	Links            int64 `json:"links"`
	Derefs           int64 `json:"derefs"`
	Timeouts         int64 `json:"timeouts"`
	PeerDeaths       int64 `json:"peerDeaths"`
	ReuseCacheHits   int64 `json:"reuseCacheHits"`
	ReuseCacheMisses int64 `json:"reuseCacheMisses"`
	BytesRead        int64 `json:"bytesRead"`
	BytesWritten     int64 `json:"bytesWritten"`
}

// TimeoutInput is the `/debug/timeout` request body, grounded directly on
// controller/rest/timeout.go's Timeout type.
type TimeoutInput struct {
	client.Resource
	OpTimeoutMS       string `json:"opTimeoutMs"`
	PeerDeathDelayMS  string `json:"peerDeathDelayMs"`
}

// PeerStatus is one row of the `/v1/peers` collection.
type PeerStatus struct {
	client.Resource
	Up bool `json:"up"`
}

// NewSchema registers every type this API exposes, matching jiva's
// NewSchema functions (replica/rest/model.go, frontend/rest/model.go).
func NewSchema() *client.Schemas {
	schemas := &client.Schemas{}
	schemas.AddType("error", client.ServerApiError{})
	schemas.AddType("apiVersion", client.Resource{})
	schemas.AddType("schema", client.Schema{})
	schemas.AddType("stats", StatsOutput{})
	schemas.AddType("peer", PeerStatus{})
	schemas.AddType("timeoutInput", TimeoutInput{})
	return schemas
}
