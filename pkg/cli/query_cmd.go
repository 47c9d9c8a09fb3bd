package cli

import (
	"context"

	"github.com/spf13/cobra"

	"model-publisher/internal/domain"
	"model-publisher/internal/service/packages"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		req  domain.QueryRequest
		cell int
	)
	cmd := &cobra.Command{
		Use:   "query <project> <package> <model>",
		Short: "Run a query against a model",
		Long: `Runs a query against a model. Give either --query with query text, or
--query-name with an optional --source to address a view of that source.
For notebooks, --cell runs the query that ends the given cell.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			var results *domain.QueryResults
			err = a.store.WithPackage(cmd.Context(), args[0], args[1], func(ctx context.Context, pkg *packages.Package) error {
				m, err := pkg.GetModel(args[2])
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("cell") {
					results, err = m.NotebookCellResult(ctx, cell)
				} else {
					results, err = m.QueryResults(ctx, req)
				}
				return err
			})
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), results)
			}
			header := make([]string, len(results.Result.Columns))
			for i, c := range results.Result.Columns {
				header[i] = c.Name
			}
			return PrintTable(cmd.OutOrStdout(), header, results.Result.Rows)
		},
	}
	cmd.Flags().StringVar(&req.Query, "query", "", "Query text")
	cmd.Flags().StringVar(&req.QueryName, "query-name", "", "Named query, or view name with --source")
	cmd.Flags().StringVar(&req.SourceName, "source", "", "Source the named view belongs to")
	cmd.Flags().IntVar(&req.RowLimit, "limit", 0, "Maximum rows to return")
	cmd.Flags().IntVar(&cell, "cell", 0, "Notebook cell index")
	return cmd
}
