// +build !debug

package restapi

import (
	"github.com/rancher/go-rancher/client"

	"github.com/gorilla/mux"
)

// registerDebugRoutes is a no-op in a production build; the
// `faultinject`-gated `/debug/timeout` route only exists in a debug build.
func registerDebugRoutes(router *mux.Router, schemas *client.Schemas, s *Server) {}
