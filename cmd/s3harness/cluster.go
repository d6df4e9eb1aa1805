package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/objectfs/s3harness/internal/cluster"
	"github.com/objectfs/s3harness/internal/harness"
)

func newNodesCmd() *cobra.Command {
	nodesCmd := &cobra.Command{
		Use:   "nodes",
		Short: "Manage cluster node containers",
		Long: `Manage the Docker containers running cluster nodes. Nodes are addressed by
index: node 3 is the container named <node_name_prefix>3.

Examples:
  s3harness nodes list
  s3harness nodes add 2
  s3harness nodes stop 3
  s3harness nodes start 3
  s3harness nodes remove 5`,
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List node containers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				nodes, err := h.Nodes()
				if err != nil {
					return err
				}
				list, err := nodes.List(ctx)
				if err != nil {
					return err
				}
				return printNodes(cmd, list)
			})
		},
	}
	nodesCmd.AddCommand(listCmd)
	nodesCmd.AddCommand(newNodesAddCmd())

	nodesCmd.AddCommand(nodeActionCmd("start", "Start a stopped node",
		func(ctx context.Context, n *cluster.DockerNodes, i int) error { return n.Start(ctx, i) }))
	nodesCmd.AddCommand(nodeActionCmd("stop", "Stop a running node",
		func(ctx context.Context, n *cluster.DockerNodes, i int) error { return n.Stop(ctx, i) }))
	nodesCmd.AddCommand(nodeActionCmd("remove", "Force-remove a node and its volumes",
		func(ctx context.Context, n *cluster.DockerNodes, i int) error { return n.Remove(ctx, i) }))

	return nodesCmd
}

func newNodesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [count]",
		Short: "Add nodes and wait for the ring to rebalance",
		Long: `Run cluster.add_node_command once per node (default ./bin/add_node.sh),
then block until the ring is balanced over the running nodes, as
wait-for-rebalance does.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid node count %q: must be a positive integer", args[0])
				}
				count = n
			}
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				out := cmd.OutOrStdout()
				err := h.AddNodes(ctx, count, func(i int) {
					fmt.Fprintf(out, "  Adding node %d\n", i)
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "ring balanced")
				return nil
			})
		},
	}
}

func nodeActionCmd(name, short string, action func(context.Context, *cluster.DockerNodes, int) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <index>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				nodes, err := h.Nodes()
				if err != nil {
					return err
				}
				if err := action(ctx, nodes, index); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok\n", name, nodes.NodeName(index))
				return nil
			})
		},
	}
}

func parseIndex(s string) (int, error) {
	index, err := strconv.Atoi(s)
	if err != nil || index < 1 {
		return 0, fmt.Errorf("invalid node index %q: must be a positive integer", s)
	}
	return index, nil
}

func printNodes(cmd *cobra.Command, nodes []cluster.Node) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tSTATE\tSTATUS")
	for _, n := range nodes {
		id := n.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.Name, id, n.State, n.Status)
	}
	return w.Flush()
}

func newRingOwnershipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ring-ownership",
		Short: "Show how many partitions each node owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				snap, err := h.StatusSource().RingStatus(ctx)
				if err != nil {
					return err
				}
				return printRing(cmd, snap)
			})
		},
	}
}

func printRing(cmd *cobra.Command, snap cluster.RingSnapshot) error {
	nodes := make([]string, 0, len(snap.Ownership))
	for n := range snap.Ownership {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tPARTITIONS")
	for _, n := range nodes {
		fmt.Fprintf(w, "%s\t%d\n", n, snap.Ownership[n])
	}
	fmt.Fprintf(w, "total\t%d\n", snap.NumPartitions)
	return w.Flush()
}

func newWaitForRebalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait-for-rebalance",
		Short: "Block until the ring is balanced over the running nodes",
		Long: `Block until every running node owns partitions and a majority of them own
within one partition of an even split. The wait is bounded by
cluster.rebalance_timeout when set; otherwise interrupt to give up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				if err := h.WaitForRebalance(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ring balanced")
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	var keepCredentials bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every node container and the local mirror",
		Long: `Force-remove every node container, delete the local mirror and delete the
--credentials file, whose admin keys belong to the removed cluster. Pass
--keep-credentials to leave that file in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := credentialsFile
			if keepCredentials {
				creds = ""
			}
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				removed, err := h.Reset(ctx, creds)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d nodes and %s\n", removed, cfg.Store.DataDir)
				if creds != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", creds)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&keepCredentials, "keep-credentials", false, "do not delete the --credentials file")
	return cmd
}
