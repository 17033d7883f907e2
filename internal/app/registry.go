package app

import (
	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/transport"
)

// TransportProvider bundles the one collaborator the cluster transport
// seam needs on each side: a Dealer for outbound sessions
// and an Acceptor invoked by the concrete transport implementation for
// each inbound session. Neither the wire engine nor this package
// implements the transport itself — only the frontend/backend-style
// plugin lookup that wires a concrete one in.
type TransportProvider interface {
	Dealer() transport.Dealer
	Serve(listen string, acceptor func(transport.Session) error) error
}

// transports and cacheEngines mirror app/controller.go's `frontends` map
// and `initializeFrontend` lookup-by-name: a named registry an embedding
// binary populates in an init() before cmd/cachenode's main runs, since
// the concrete transport and concrete local-cache engine are both left to
// whatever binary embeds this module.
var (
	transports   = map[string]TransportProvider{}
	cacheEngines = map[string]cachevc.Engine{}
)

// RegisterTransport makes a named TransportProvider available to the
// `serve` command's `--transport` flag.
func RegisterTransport(name string, p TransportProvider) {
	transports[name] = p
}

// RegisterCacheEngine makes a named cachevc.Engine available to the
// `serve` command's `--cache-engine` flag.
func RegisterCacheEngine(name string, e cachevc.Engine) {
	cacheEngines[name] = e
}

func lookupTransport(name string) (TransportProvider, bool) {
	p, ok := transports[name]
	return p, ok
}

func lookupCacheEngine(name string) (cachevc.Engine, bool) {
	e, ok := cacheEngines[name]
	return e, ok
}
