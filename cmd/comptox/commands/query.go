package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comptox-ai/comptox-api-client/pkg/api"
)

func newConfigCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Fetch the backend client config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := rt.app.Hooks().ConfigQuery().Use(cmd.Context())
			return printState(cmd.OutOrStdout(), st, rt.opts.asJSON, renderConfig)
		},
	}
}

func newSearchCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "search <label> <field> <value>",
		Short:   "Search nodes of a label by one property",
		Example: "  comptox search Chemical name Benzene",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := rt.app.Hooks().SearchNodesQuery(args[0], args[1], args[2]).Use(cmd.Context())
			return printState(cmd.OutOrStdout(), st, rt.opts.asJSON, renderNodes)
		},
	}
}

func newRelationshipsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "relationships <nodeId>",
		Aliases: []string{"rels"},
		Short:   "List relationships starting at a node",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := rt.app.Hooks().RelationshipsByNodeIDQuery(args[0]).Use(cmd.Context())
			return printState(cmd.OutOrStdout(), st, rt.opts.asJSON, renderRelationships)
		},
	}
}

func newURLCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "url <operation> [args...]",
		Short: "Print the request URL of an operation without sending it",
		Long: `Operations:
  config
  search <label> <field> <value>
  relationships <nodeId>`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := rt.app.Client()
			var (
				u   string
				err error
			)
			switch op, rest := args[0], args[1:]; op {
			case "config", api.EndpointFetchConfig:
				if len(rest) != 0 {
					return fmt.Errorf("config takes no arguments")
				}
				u, err = client.ConfigURL()
			case "search", api.EndpointSearchNodes:
				if len(rest) != 3 {
					return fmt.Errorf("search takes <label> <field> <value>")
				}
				u, err = client.SearchNodesURL(rest[0], rest[1], rest[2])
			case "relationships", "rels", api.EndpointFetchRelationshipsByNodeID:
				if len(rest) != 1 {
					return fmt.Errorf("relationships takes <nodeId>")
				}
				u, err = client.RelationshipsURL(rest[0])
			default:
				return fmt.Errorf("unknown operation %q", op)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), u)
			return err
		},
	}
}
