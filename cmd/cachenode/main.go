// Command cachenode is the cluster cache node process: it hosts the
// responder side of the engine against a registered local cache engine
// and transport, and exposes the initiator side to an embedding caller
// via internal/app.CurrentInitiator. Grounded on jiva's top-level
// cli.App wiring its replica/controller subcommands (app/*.go's
// *Cmd() constructors).
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/jiva-cluster/ccrpc/internal/app"
)

var version = "0.1.0"

func main() {
	a := cli.NewApp()
	a.Name = "cachenode"
	a.Version = version
	a.Usage = "cluster cache-operation RPC node"
	a.Commands = []cli.Command{
		app.ServeCmd(),
		app.RotateLogCmd(),
	}

	if err := a.Run(os.Args); err != nil {
		logrus.Fatalf("cachenode: %v", err)
	}
}
