package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/bitfsorg/blockfs-go/peer"
)

var nodeFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "node",
		EnvVars: []string{"BLOCKFS_NODE"},
		Value:   "127.0.0.1:3000",
		Usage:   "address of the running node",
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Value: 10 * time.Second,
		Usage: "request timeout",
	},
}

func nodeClient(cctx *cli.Context) (*peer.HTTPClient, string) {
	return peer.NewHTTPClient(cctx.Duration("timeout")), cctx.String("node")
}

var idCmd = &cli.Command{
	Name:  "id",
	Usage: "Print the id of a running node",
	Flags: nodeFlags,
	Action: func(cctx *cli.Context) error {
		c, addr := nodeClient(cctx)
		id, err := c.GetID(cctx.Context, addr)
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, id)
		return nil
	},
}

var peersCmd = &cli.Command{
	Name:  "peers",
	Usage: "Inspect and edit the peer table of a running node",
	Flags: nodeFlags,
	Subcommands: []*cli.Command{
		peersListCmd,
		peersAddCmd,
		peersRemoveCmd,
	},
}

var peersListCmd = &cli.Command{
	Name:  "list",
	Usage: "List known peers",
	Action: func(cctx *cli.Context) error {
		c, addr := nodeClient(cctx)
		peers, err := c.GetPeers(cctx.Context, addr)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cctx.App.Writer, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tADDRESS")
		ids := lo.Keys(peers)
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(tw, "%s\t%s\n", id, peers[id])
		}
		return tw.Flush()
	},
}

var peersAddCmd = &cli.Command{
	Name:      "add",
	Usage:     "Add a peer",
	ArgsUsage: "<id> <address>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return fmt.Errorf("expected <id> <address>, got %d arguments", cctx.NArg())
		}
		c, addr := nodeClient(cctx)
		info := peer.Info{ID: cctx.Args().Get(0), Address: cctx.Args().Get(1)}
		if err := c.AddPeer(cctx.Context, addr, info); err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "added %s at %s\n", info.ID, info.Address)
		return nil
	},
}

var peersRemoveCmd = &cli.Command{
	Name:      "remove",
	Usage:     "Remove a peer",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("expected <id>, got %d arguments", cctx.NArg())
		}
		c, addr := nodeClient(cctx)
		id := cctx.Args().First()
		if err := c.RemovePeer(cctx.Context, addr, id); err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "removed %s\n", id)
		return nil
	},
}

var ledgerCmd = &cli.Command{
	Name:  "ledger",
	Usage: "List the files recorded by a running node",
	Flags: nodeFlags,
	Action: func(cctx *cli.Context) error {
		c, addr := nodeClient(cctx)
		entries, err := c.GetLedger(cctx.Context, addr)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cctx.App.Writer, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tID\tNAME\tSIZE\tCHUNKS")
		for i, e := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", i, e.ID, e.Name, e.Size, len(e.Chunks))
		}
		return tw.Flush()
	},
}
