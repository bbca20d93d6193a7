package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("blockfsd")

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "blockfsd",
		Usage:   "Peer-to-peer chunk storage node",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				EnvVars: []string{"BLOCKFS_DATA_DIR"},
				Usage:   "node state directory (default ~/.blockfs)",
			},
		},
		Commands: []*cli.Command{
			runCmd,
			initCmd,
			configCmd,
			idCmd,
			peersCmd,
			ledgerCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
