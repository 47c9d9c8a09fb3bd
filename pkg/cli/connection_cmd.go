package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"model-publisher/internal/service/packages"
	"model-publisher/internal/service/storage"
)

func newConnectionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Work directly with a package's connections",
		Long: `Runs SQL and catalog lookups on a connection of a package. Connections are
resolved in the package's merged set, so inherited project connections and
the package's own duckdb connection are all addressable by name.`,
	}
	cmd.AddCommand(newConnectionQueryCmd(opts))
	cmd.AddCommand(newConnectionTempTableCmd(opts))
	cmd.AddCommand(newConnectionDescribeSQLCmd(opts))
	cmd.AddCommand(newConnectionDescribeTableCmd(opts))
	cmd.AddCommand(newConnectionSchemasCmd(opts))
	cmd.AddCommand(newConnectionTablesCmd(opts))
	cmd.AddCommand(newConnectionDescribeBucketCmd(opts))
	return cmd
}

// withPackage loads the runtime and runs fn against project/package.
func withPackage(cmd *cobra.Command, opts *rootOptions, project, pkg string, fn func(context.Context, *packages.Package) error) error {
	a, err := loadApp(cmd.Context(), opts.cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return a.store.WithPackage(cmd.Context(), project, pkg, fn)
}

func printNames(cmd *cobra.Command, header string, names []string) error {
	if getOutputFormat(cmd) == "json" {
		if names == nil {
			names = []string{}
		}
		return PrintJSON(cmd.OutOrStdout(), names)
	}
	rows := make([][]interface{}, 0, len(names))
	for _, n := range names {
		rows = append(rows, []interface{}{n})
	}
	return PrintTable(cmd.OutOrStdout(), []string{header}, rows)
}

func newConnectionQueryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <project> <package> <connection> <sql>",
		Short: "Run SQL on a connection",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, opts, args[0], args[1], func(ctx context.Context, pkg *packages.Package) error {
				res, err := pkg.RunConnectionSQL(ctx, args[2], args[3], limit)
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(cmd.OutOrStdout(), res)
				}
				header := make([]string, len(res.Columns))
				for i, c := range res.Columns {
					header[i] = c.Name
				}
				return PrintTable(cmd.OutOrStdout(), header, res.Rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to return")
	return cmd
}

func newConnectionTempTableCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "temp-table <project> <package> <connection> <sql>",
		Short: "Materialize SQL into a temporary table and print its name",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, opts, args[0], args[1], func(ctx context.Context, pkg *packages.Package) error {
				tt, err := pkg.CreateTemporaryTable(ctx, args[2], args[3])
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(cmd.OutOrStdout(), tt)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), tt.Table)
				return err
			})
		},
	}
}

func newConnectionDescribeSQLCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe-sql <project> <package> <connection> <sql>",
		Short: "Show the columns a SQL statement returns",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, opts, args[0], args[1], func(ctx context.Context, pkg *packages.Package) error {
				src, err := pkg.DescribeSQLSource(ctx, args[2], args[3])
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(cmd.OutOrStdout(), src)
				}
				rows := make([][]interface{}, 0, len(src.Columns))
				for _, c := range src.Columns {
					rows = append(rows, []interface{}{c.Name, c.Type})
				}
				return PrintTable(cmd.OutOrStdout(), []string{"column", "type"}, rows)
			})
		},
	}
}

func newConnectionDescribeTableCmd(opts *rootOptions) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "describe-table <project> <package> <connection> <table>",
		Short: "Show the columns of a table",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, opts, args[0], args[1], func(ctx context.Context, pkg *packages.Package) error {
				src, err := pkg.DescribeTable(ctx, args[2], schema, args[3])
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(cmd.OutOrStdout(), src)
				}
				rows := make([][]interface{}, 0, len(src.Columns))
				for _, c := range src.Columns {
					rows = append(rows, []interface{}{c.Name, c.Type})
				}
				return PrintTable(cmd.OutOrStdout(), []string{"column", "type"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "Schema holding the table")
	return cmd
}

func newConnectionSchemasCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas <project> <package> <connection>",
		Short: "List the schemas of a connection",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, opts, args[0], args[1], func(ctx context.Context, pkg *packages.Package) error {
				schemas, err := pkg.ListConnectionSchemas(ctx, args[2])
				if err != nil {
					return err
				}
				return printNames(cmd, "schema", schemas)
			})
		},
	}
}

func newConnectionTablesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <project> <package> <connection> <schema>",
		Short: "List the tables of a schema",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, opts, args[0], args[1], func(ctx context.Context, pkg *packages.Package) error {
				tables, err := pkg.ListConnectionTables(ctx, args[2], args[3])
				if err != nil {
					return err
				}
				return printNames(cmd, "table", tables)
			})
		},
	}
}

// bucketFile is the printable form of a storage.FileDescription.
type bucketFile struct {
	Path     string `json:"path"`
	RowCount int64  `json:"rowCount,omitempty"`
	Columns  int    `json:"columns,omitempty"`
	Error    string `json:"error,omitempty"`
}

func toBucketFiles(files []storage.FileDescription) []bucketFile {
	out := make([]bucketFile, 0, len(files))
	for _, f := range files {
		bf := bucketFile{Path: f.Path}
		if f.Err != nil {
			bf.Error = f.Err.Error()
		} else if f.Table != nil {
			bf.RowCount = f.Table.RowCount
			bf.Columns = len(f.Table.Columns)
		}
		out = append(out, bf)
	}
	return out
}

func newConnectionDescribeBucketCmd(opts *rootOptions) *cobra.Command {
	var (
		prefix      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "describe-bucket <project> <package> <connection> <bucket>",
		Short: "Describe the data files in an object store bucket",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, opts, args[0], args[1], func(ctx context.Context, pkg *packages.Package) error {
				files, err := pkg.DescribeBucket(ctx, args[2], args[3], prefix, concurrency)
				if err != nil {
					return err
				}
				described := toBucketFiles(files)
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(cmd.OutOrStdout(), described)
				}
				rows := make([][]interface{}, 0, len(described))
				for _, f := range described {
					rows = append(rows, []interface{}{f.Path, f.RowCount, f.Columns, f.Error})
				}
				return PrintTable(cmd.OutOrStdout(), []string{"path", "rows", "columns", "error"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only describe objects under this key prefix")
	cmd.Flags().IntVar(&concurrency, "concurrency", storage.DefaultDescribeConcurrency, "Concurrent file describes")
	return cmd
}
