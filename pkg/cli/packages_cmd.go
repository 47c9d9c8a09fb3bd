package cli

import (
	"github.com/spf13/cobra"

	"model-publisher/internal/domain"
)

func newPackagesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "packages [project]",
		Short: "List the packages of every project, or of one project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			names := a.store.ListProjects()
			if len(args) == 1 {
				names = args[:1]
			}
			summaries := []domain.PackageSummary{}
			for _, name := range names {
				p, err := a.store.Project(name)
				if err != nil {
					return err
				}
				summaries = append(summaries, p.ListPackages()...)
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), summaries)
			}
			rows := make([][]interface{}, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []interface{}{s.ProjectName, s.Name, s.Description})
			}
			return PrintTable(cmd.OutOrStdout(), []string{"project", "name", "description"}, rows)
		},
	}
}

func newModelsCmd(opts *rootOptions) *cobra.Command {
	var notebooks bool
	cmd := &cobra.Command{
		Use:   "models <project> <package>",
		Short: "List the models of a package with their load errors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.store.Project(args[0])
			if err != nil {
				return err
			}
			pkg, err := p.Package(args[1])
			if err != nil {
				return err
			}
			var kinds []domain.ModelKind
			if notebooks {
				kinds = append(kinds, domain.ModelKindNotebook)
			}
			models := pkg.ListModels(kinds...)

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), models)
			}
			rows := make([][]interface{}, 0, len(models))
			for _, m := range models {
				rows = append(rows, []interface{}{m.Path, string(m.Kind), m.Error})
			}
			return PrintTable(cmd.OutOrStdout(), []string{"path", "type", "error"}, rows)
		},
	}
	cmd.Flags().BoolVar(&notebooks, "notebooks", false, "Only list notebooks")
	return cmd
}
