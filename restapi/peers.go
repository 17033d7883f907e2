package restapi

import (
	"net/http"

	"github.com/rancher/go-rancher/api"
	"github.com/rancher/go-rancher/client"
)

// ListPeers implements `GET /v1/peers`, a membership snapshot surface over
// liveness.PeerTable's "is peer X alive right now" state, exposed for
// operators and grounded on replica/rest/replica.go's
// ListReplicas/client.GenericCollection pattern.
func (s *Server) ListPeers(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	resp := client.GenericCollection{}
	for peer, up := range s.Peers.Snapshot() {
		resp.Data = append(resp.Data, &PeerStatus{
			Resource: client.Resource{Id: peer, Type: "peer"},
			Up:       up,
		})
	}
	apiContext.Write(&resp)
	return nil
}
