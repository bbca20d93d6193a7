package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bitfsorg/blockfs-go/config"
)

// loadConfig layers defaults, the config file, environment, and flags.
func loadConfig(cctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(cctx.String("data-dir"))
	if err != nil {
		return cfg, err
	}

	if cctx.IsSet("listen") {
		cfg.ListenAddr = cctx.String("listen")
	}
	if cctx.IsSet("advertise") {
		cfg.AdvertiseAddr = cctx.String("advertise")
	}
	if cctx.IsSet("tracker") {
		cfg.TrackerAddr = cctx.String("tracker")
	}
	if cctx.IsSet("log-level") {
		cfg.LogLevel = cctx.String("log-level")
	}
	if cctx.IsSet("chunk-size") {
		cfg.ChunkSize = cctx.Int("chunk-size")
	}
	if cctx.IsSet("peer-timeout") {
		cfg.PeerTimeout = cctx.Duration("peer-timeout")
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "Write a config file with the resolved settings",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "tracker", Usage: "tracker host:port or srv:{domain}"},
		&cli.StringFlag{Name: "advertise", Usage: "host:port announced to the tracker and peers"},
		&cli.BoolFlag{Name: "force", Usage: "overwrite an existing config file"},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		path := config.ConfigPath(cfg.DataDir)
		if _, err := os.Stat(path); err == nil && !cctx.Bool("force") {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.SaveConfig(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "wrote %s\n", path)
		return nil
	},
}

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "Print the resolved configuration",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		w := cctx.App.Writer
		fmt.Fprintf(w, "datadir     = %s\n", cfg.DataDir)
		fmt.Fprintf(w, "listen      = %s\n", cfg.ListenAddr)
		fmt.Fprintf(w, "advertise   = %s\n", advertiseAddr(cfg))
		fmt.Fprintf(w, "tracker     = %s\n", cfg.TrackerAddr)
		fmt.Fprintf(w, "loglevel    = %s\n", cfg.LogLevel)
		fmt.Fprintf(w, "logfile     = %s\n", cfg.LogFile)
		fmt.Fprintf(w, "chunksize   = %d\n", cfg.ChunkSize)
		fmt.Fprintf(w, "peertimeout = %s\n", cfg.PeerTimeout)
		return nil
	},
}
