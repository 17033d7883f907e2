package app

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/jiva-cluster/ccrpc/clusterstats"
	"github.com/jiva-cluster/ccrpc/config"
	"github.com/jiva-cluster/ccrpc/initiator"
	"github.com/jiva-cluster/ccrpc/liveness"
	"github.com/jiva-cluster/ccrpc/logging"
	"github.com/jiva-cluster/ccrpc/reusecache"
	"github.com/jiva-cluster/ccrpc/responder"
	"github.com/jiva-cluster/ccrpc/restapi"
	"github.com/jiva-cluster/ccrpc/seqreg"
)

// CurrentInitiator is the running node's initiator.Engine, set once serve
// starts. An embedding binary that issues cache ops (rather than only
// responding to peers) reads this to call DoOp/OpenWrite with its own
// initiator.Caller.
var CurrentInitiator *initiator.Engine

// ServeCmd starts a cache node: it wires the responder/initiator engines
// and their collaborators, starts the registered transport's accept loop,
// and serves the stats/debug HTTP surface. Grounded on app/controller.go's
// ControllerCmd: flag-driven cli.Command whose Action does all the wiring
// jiva's replica process controller command does for a volume.
func ServeCmd() cli.Command {
	return cli.Command{
		Name: "serve",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "transport", Value: "", Usage: "registered transport provider name"},
			cli.StringFlag{Name: "cache-engine", Value: "", Usage: "registered local cache engine name"},
			cli.StringFlag{Name: "listen", Value: ""},
			cli.StringFlag{Name: "stats-listen", Value: ":7112"},
			cli.StringFlag{Name: "log-dir", Value: ""},
			cli.BoolFlag{Name: "migrate-on-demand"},
			cli.Int64Flag{Name: "small-fragment-threshold", Value: 0},
		},
		Action: func(c *cli.Context) {
			if err := serve(c); err != nil {
				logrus.Fatalf("Error running serve command: %v", err)
			}
		},
	}
}

func serve(c *cli.Context) error {
	cfg := config.FromEnv(config.Default())
	if v := c.String("listen"); v != "" {
		cfg.ListenAddress = v
	}
	if c.Bool("migrate-on-demand") {
		cfg.MigrateOnDemand = true
	}
	if v := c.Int64("small-fragment-threshold"); v != 0 {
		cfg.SmallFragmentThreshold = v
	}
	if v := c.String("log-dir"); v != "" {
		cfg.LogDir = v
	}

	if err := logging.Configure(cfg.LogDir, cfg.LogToFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	transportName := c.String("transport")
	tp, ok := lookupTransport(transportName)
	if !ok {
		return errors.New("unknown transport provider: " + transportName)
	}
	cacheEngineName := c.String("cache-engine")
	cacheEngine, ok := lookupCacheEngine(cacheEngineName)
	if !ok {
		return errors.New("unknown cache engine: " + cacheEngineName)
	}

	stats := clusterstats.New(cfg.LogDir+"/stats.json", cfg.StatsFlushInterval)
	peers := liveness.NewPeerTable()
	registry := seqreg.New(cfg.RetryPeriod, seqreg.TimeScheduler{})
	reuse := reusecache.New(cfg.ScanInterval)
	live := liveness.NewTracker()

	initEngine := initiator.NewEngine(tp.Dealer(), registry, reuse, live, peers, cfg.ClusterTimeout)
	initEngine.Stats = stats

	respEngine := &responder.Engine{
		Cache:                  cacheEngine,
		MigrateOnDemand:        cfg.MigrateOnDemand,
		SmallFragmentThreshold: cfg.SmallFragmentThreshold,
		Stats:                  stats,
	}

	CurrentInitiator = initEngine

	addShutdown(func() {
		stats.Stop()
	})

	go func() {
		server := restapi.NewServer(stats, peers)
		router := restapi.NewRouter(server)
		handler := restapi.WithAccessLog(router, os.Stdout)
		logrus.Infof("stats/debug HTTP surface listening on %s", c.String("stats-listen"))
		if err := http.ListenAndServe(c.String("stats-listen"), handler); err != nil {
			logrus.Errorf("stats HTTP server exited: %v", err)
		}
	}()

	logrus.Infof("serving on %s via transport %q, cache engine %q", cfg.ListenAddress, transportName, cacheEngineName)
	return tp.Serve(cfg.ListenAddress, respEngine.Accept)
}
