package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomnetwork/featurechain/config"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/rpc"
)

func newFeaturesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Inspect the protocol features of the local node (the node must not be running)",
	}
	cmd.AddCommand(
		newQueryCommand("list", "List every protocol feature the node knows about", 0,
			func(qs rpc.QueryService, args []string) (interface{}, error) {
				return qs.Features()
			}),
		newQueryCommand("show <digest|codename|name>", "Show a single protocol feature", 1,
			func(qs rpc.QueryService, args []string) (interface{}, error) {
				return qs.Feature(args[0])
			}),
		newQueryCommand("history", "List the protocol features activated so far", 0,
			func(qs rpc.QueryService, args []string) (interface{}, error) {
				return qs.Activations()
			}),
		newQueryCommand("pending", "List the preactivated protocol features", 0,
			func(qs rpc.QueryService, args []string) (interface{}, error) {
				return qs.Pending()
			}),
		newQueryCommand("status", "Show the chain status", 0,
			func(qs rpc.QueryService, args []string) (interface{}, error) {
				return qs.Status()
			}),
	)
	return cmd
}

type queryFunc func(qs rpc.QueryService, args []string) (interface{}, error)

func newQueryCommand(use, short string, numArgs int, query queryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(numArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseConfig()
			if err != nil {
				return err
			}
			out, err := runQuery(cfg, args, query)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

// runQuery rebuilds the node state from its block log and runs the given query against it.
func runQuery(cfg *config.Config, args []string, query queryFunc) (string, error) {
	n, err := openNode(cfg, log.NewNopLogger())
	if err != nil {
		return "", err
	}
	defer n.close()
	result, err := query(&rpc.QueryServer{StateProvider: n.chain}, args)
	if err != nil {
		return "", err
	}
	return formatJSON(result)
}

func formatJSON(v interface{}) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
