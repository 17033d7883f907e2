package restapi

import (
	"io"
	"net/http"
	_ "net/http/pprof"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rancher/go-rancher/api"
)

// NewRouter builds the node's stats/debug HTTP surface, grounded on
// controller/rest/router.go's mux.Router + rancher api-schema wiring.
func NewRouter(s *Server) *mux.Router {
	schemas := NewSchema()
	router := mux.NewRouter().StrictSlash(true)
	f := HandleError

	router.Methods("GET").Path("/").Handler(api.VersionsHandler(schemas, "v1"))
	router.Methods("GET").Path("/v1/schemas").Handler(api.SchemasHandler(schemas))
	router.Methods("GET").Path("/v1/schemas/{id}").Handler(api.SchemaHandler(schemas))
	router.Methods("GET").Path("/v1").Handler(api.VersionHandler(schemas, "v1"))

	router.Methods("GET").Path("/v1/stats").Handler(f(schemas, s.GetStats))
	router.Methods("GET").Path("/v1/peers").Handler(f(schemas, s.ListPeers))
	router.Handle("/metrics", promhttp.Handler())

	registerDebugRoutes(router, schemas, s)

	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return router
}

// WithAccessLog wraps router in jiva's filtered access-log handler
// (util.FilteredLoggingHandler via app/controller.go), excluding the
// high-frequency stats/metrics paths from the access log.
func WithAccessLog(router http.Handler, w io.Writer) http.Handler {
	filtered := map[string]struct{}{"/v1/stats": {}, "/metrics": {}}
	return filteredLoggingHandler{filteredPaths: filtered, handler: router, loggingHandler: handlers.LoggingHandler(w, router)}
}

type filteredLoggingHandler struct {
	filteredPaths  map[string]struct{}
	handler        http.Handler
	loggingHandler http.Handler
}

func (h filteredLoggingHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodGet {
		if _, skip := h.filteredPaths[req.URL.Path]; skip {
			h.handler.ServeHTTP(rw, req)
			return
		}
	}
	h.loggingHandler.ServeHTTP(rw, req)
}
