// Bunraftctl is the operator CLI for Bunraft: query a node's consensus
// status or propose a command against a running cluster.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunraft/internal/rpc"
)

var (
	nodeAddr string
	timeout  time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "bunraftctl",
		Short: "Operator CLI for Bunraft nodes",
	}
	root.PersistentFlags().StringVar(&nodeAddr, "addr", "127.0.0.1:5030", "node RPC address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Second, "RPC timeout")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print a node's consensus status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := rpc.NewClient(timeout)
			reply, err := client.SendStatus(nodeAddr)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(reply, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	proposeCmd := &cobra.Command{
		Use:   "propose <command>",
		Short: "Propose a command to the cluster via the addressed node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := rpc.NewClient(timeout)
			reply, err := client.SendPropose(nodeAddr, []byte(args[0]))
			if err != nil {
				return err
			}
			if !reply.IsLeader {
				if reply.LeaderID != 0 {
					return fmt.Errorf("node is not the leader; try node %d", reply.LeaderID)
				}
				return fmt.Errorf("node is not the leader and knows no leader yet")
			}
			fmt.Printf("accepted at index %d (term %d)\n", reply.Index, reply.Term)
			return nil
		},
	}

	root.AddCommand(statusCmd, proposeCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
