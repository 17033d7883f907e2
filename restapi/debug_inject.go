// +build debug

package restapi

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rancher/go-rancher/api"
	"github.com/rancher/go-rancher/client"
	"github.com/sirupsen/logrus"
)

// registerDebugRoutes wires `POST /debug/timeout`, grounded directly on
// controller/rest/timeout.go's AddTimeout: it sets the env vars
// internal/faultinject's debug build reads, a test aid for forcing a
// timeout-with-late-reply scenario on demand.
func registerDebugRoutes(router *mux.Router, schemas *client.Schemas, s *Server) {
	router.Methods("POST").Path("/debug/timeout").Handler(HandleError(schemas, addTimeout))
}

func addTimeout(rw http.ResponseWriter, req *http.Request) error {
	var in TimeoutInput
	apiContext := api.GetApiContext(req)
	if err := apiContext.Read(&in); err != nil {
		return err
	}
	if in.OpTimeoutMS != "" {
		logrus.Infof("faultinject: set DEBUG_OP_TIMEOUT_MS=%s", in.OpTimeoutMS)
		return os.Setenv("DEBUG_OP_TIMEOUT_MS", in.OpTimeoutMS)
	}
	if in.PeerDeathDelayMS != "" {
		logrus.Infof("faultinject: set DEBUG_PEER_DEATH_DELAY_MS=%s", in.PeerDeathDelayMS)
		return os.Setenv("DEBUG_PEER_DEATH_DELAY_MS", in.PeerDeathDelayMS)
	}
	return fmt.Errorf("debug/timeout: received empty value")
}
