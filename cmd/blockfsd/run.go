package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/bitfsorg/blockfs-go/api"
	"github.com/bitfsorg/blockfs-go/config"
	"github.com/bitfsorg/blockfs-go/node"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start the storage node",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "listen", Usage: "HTTP listen address"},
		&cli.StringFlag{Name: "advertise", Usage: "host:port announced to the tracker and peers"},
		&cli.StringFlag{Name: "tracker", Usage: "tracker host:port or srv:{domain}"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, or error"},
		&cli.IntFlag{Name: "chunk-size", Usage: "plaintext chunk size in bytes"},
		&cli.DurationFlag{Name: "peer-timeout", Usage: "bound on each peer request"},
		&cli.DurationFlag{Name: "ping-interval", Value: time.Minute, Usage: "how often unreachable peers are swept"},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		n, err := node.Open(node.Options{
			DataDir:       cfg.DataDir,
			AdvertiseAddr: advertiseAddr(cfg),
			TrackerAddr:   cfg.TrackerAddr,
			ChunkSize:     cfg.ChunkSize,
			PeerTimeout:   cfg.PeerTimeout,
		})
		if err != nil {
			return fmt.Errorf("open node: %w", err)
		}
		defer func() {
			if err := n.Close(); err != nil {
				log.Warnw("close node", "err", err)
			}
		}()

		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           api.NewRouter(n),
			ReadHeaderTimeout: 10 * time.Second,
		}
		lst, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
		}

		serveErr := make(chan error, 1)
		go func() { serveErr <- srv.Serve(lst) }()
		log.Infow("listening", "addr", lst.Addr().String(), "id", n.ID(), "advertise", n.Info().Address)

		if removed := n.PingPeers(ctx); len(removed) > 0 {
			log.Infow("removed unreachable peers", "peers", removed)
		}
		if cfg.TrackerAddr != "" {
			if _, err := n.Announce(ctx); err != nil {
				log.Warnw("an error occurred during announcement", "tracker", cfg.TrackerAddr, "err", err)
			}
		}

		go sweepPeers(ctx, n, cctx.Duration("ping-interval"))

		select {
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func sweepPeers(ctx context.Context, n *node.Node, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := n.PingPeers(ctx); len(removed) > 0 {
				log.Infow("removed unreachable peers", "peers", removed)
			}
		}
	}
}

// advertiseAddr falls back to the listen address, substituting loopback
// for an empty host.
func advertiseAddr(cfg config.Config) string {
	if cfg.AdvertiseAddr != "" {
		return cfg.AdvertiseAddr
	}
	host, port, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return cfg.ListenAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		log.Warnw("no advertise address configured, peers outside this host cannot reach the node", "listen", cfg.ListenAddr)
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func setupLogging(cfg config.Config) error {
	lvl, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidLogLevel, err)
	}
	lc := logging.GetConfig()
	lc.Level = lvl
	if cfg.LogFile != "" {
		lc.File = cfg.LogFile
		lc.Stderr = false
	}
	logging.SetupLogging(lc)
	return nil
}
