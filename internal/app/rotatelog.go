package app

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/jiva-cluster/ccrpc/logging"
)

// RotateLogCmd forces the running process's log file to rotate, grounded
// on jiva's simple single-action commands (app/del_volume.go).
func RotateLogCmd() cli.Command {
	return cli.Command{
		Name: "rotate-log",
		Action: func(c *cli.Context) {
			if err := logging.Rotate(); err != nil {
				logrus.Fatalf("Error rotating log: %v", err)
			}
		},
	}
}
