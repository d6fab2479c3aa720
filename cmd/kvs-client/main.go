// Command kvs-client is the interactive CLI front end for kvs-server,
// per spec.md §6-§7.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvslab/kvs/internal/client"
)

const defaultAddr = "127.0.0.1:4000"

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:           "kvs-client",
		Short:         "kvs-client talks to a kvs-server instance",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "server address, IP:PORT")

	root.AddCommand(newSetCmd(&addr), newGetCmd(&addr), newRmCmd(&addr))
	return root
}

func newSetCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "set a key to a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Connect(*addr, 5*time.Second)
			if err != nil {
				return exitWith(err)
			}
			defer c.Close()

			reply, err := c.Set(args[0], args[1])
			if err != nil {
				return exitWith(err)
			}
			if !reply.IsOK() {
				return exitWith(fmt.Errorf("%s", reply.Message))
			}
			return nil
		},
	}
}

func newGetCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "get the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Connect(*addr, 5*time.Second)
			if err != nil {
				return exitWith(err)
			}
			defer c.Close()

			reply, err := c.Get(args[0])
			if err != nil {
				return exitWith(err)
			}
			if !reply.IsOK() {
				if reply.Message == "Key not found" {
					// A missing key is a normal outcome, not a client
					// failure: report it on stdout and exit cleanly.
					fmt.Println(reply.Message)
					return nil
				}
				return exitWith(fmt.Errorf("%s", reply.Message))
			}
			fmt.Println(reply.Body)
			return nil
		},
	}
}

func newRmCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm KEY",
		Short: "remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Connect(*addr, 5*time.Second)
			if err != nil {
				return exitWith(err)
			}
			defer c.Close()

			reply, err := c.Remove(args[0])
			if err != nil {
				return exitWith(err)
			}
			if !reply.IsOK() {
				return exitWith(fmt.Errorf("%s", reply.Message))
			}
			return nil
		},
	}
}

// exitWith prints err to stderr and returns it so cobra's Execute
// surfaces a non-zero exit code, per spec.md §7's error scenarios.
func exitWith(err error) error {
	fmt.Fprintln(os.Stderr, err)
	return err
}
