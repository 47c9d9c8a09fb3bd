package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"model-publisher/internal/domain"
	"model-publisher/internal/service/packages"
)

type connectionTestResult struct {
	Name string `json:"name"`
	domain.ConnectionStatus
}

func newTestConnectionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection <connections-file> [name]",
		Short: "Test the connections declared in a connections file",
		Long:  "Builds each connection declared in a publisher.connections.json file and runs its health check. With a name, only that connection is tested.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := packages.ReadConnections(args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				var picked []domain.ConnectionConfig
				for _, c := range configs {
					if c.Name == args[1] {
						picked = append(picked, c)
						break
					}
				}
				if len(picked) == 0 {
					return domain.ErrConnectionNotFound("connection %q not found in %s", args[1], args[0])
				}
				configs = picked
			}

			a := newApp(opts.cfg, false)
			results := make([]connectionTestResult, 0, len(configs))
			failed := 0
			for _, c := range configs {
				status := a.broker.TestConnection(cmd.Context(), c)
				if status.Status != domain.ConnectionStatusOK {
					failed++
				}
				results = append(results, connectionTestResult{Name: c.Name, ConnectionStatus: status})
			}

			if getOutputFormat(cmd) == "json" {
				if err := PrintJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				rows := make([][]interface{}, 0, len(results))
				for _, r := range results {
					rows = append(rows, []interface{}{r.Name, r.Status, r.ErrorMessage})
				}
				if err := PrintTable(cmd.OutOrStdout(), []string{"name", "status", "error"}, rows); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d connections failed", failed, len(results))
			}
			return nil
		},
	}
}
