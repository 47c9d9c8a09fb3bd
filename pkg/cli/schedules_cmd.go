package cli

import (
	"github.com/spf13/cobra"
)

func newSchedulesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedules <project> <package>",
		Short: "List the schedules declared by a package's models",
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
			schedules := pkg.ListSchedules()
			for _, problem := range pkg.ScheduleProblems() {
				a.logger.Warn("invalid schedule", "problem", problem)
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), schedules)
			}
			rows := make([][]interface{}, 0, len(schedules))
			for _, s := range schedules {
				rows = append(rows, []interface{}{s.Resource, s.Schedule, s.NormalizedCron, string(s.Action), s.Connection, s.LastRunStatus})
			}
			return PrintTable(cmd.OutOrStdout(), []string{"resource", "schedule", "cron", "action", "connection", "last run"}, rows)
		},
	}
}
