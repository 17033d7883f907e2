package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/rancher/go-rancher/client"
	"github.com/sirupsen/logrus"
)

// apiHandler is jiva's `func(rw, req) error` handler shape
// (replica/rest/*.go, controller/rest/*.go); HandleError adapts it to
// http.Handler the same way controller/rest/router.go's local `f :=
// rest.HandleError` does, writing a 500 with an errorBody (Resource type
// "error" plus the error message) on failure.
type apiHandler func(rw http.ResponseWriter, req *http.Request) error

// HandleError wraps h so a returned error becomes a structured API error
// response instead of a bare 500.
// errorBody mirrors the client.Resource-embedding shape jiva's
// response types use (replica/rest/model.go's Version, Replica, ...)
// without depending on client.ServerApiError's exact field set, which
// isn't visible from this module's vendored surface.
type errorBody struct {
	client.Resource
	Message string `json:"message"`
}

func HandleError(schemas *client.Schemas, h apiHandler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		if err := h(rw, req); err != nil {
			logrus.Errorf("restapi: %s %s: %v", req.Method, req.URL.Path, err)
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(rw).Encode(&errorBody{
				Resource: client.Resource{Type: "error"},
				Message:  err.Error(),
			})
		}
	})
}
