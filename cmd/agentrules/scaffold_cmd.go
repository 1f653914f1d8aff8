package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/scaffold"
)

func newScaffoldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scaffold",
		Short: "Manage the .agent planning scaffold",
	}
	cmd.AddCommand(newScaffoldSyncCmd())
	return cmd
}

func newScaffoldSyncCmd() *cobra.Command {
	var check, force bool
	cmd := &cobra.Command{
		Use:   "sync [path]",
		Short: "Create or refresh .agent/PLANS.md and the milestone template",
		Long: `Write .agent/PLANS.md and .agent/templates/MILESTONE_TEMPLATE.md into the
repository. Missing files are created. Files that differ from the shipped
templates are kept unless --force is given, in which case the old content is
saved to a timestamped .bak file first. With --check nothing is written and the
command exits 1 when any file is missing or outdated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if check && force {
				return fmt.Errorf("choose either --check or --force, not both")
			}
			dir, err := projectDir(args)
			if err != nil {
				return err
			}

			result, err := scaffold.Sync(dir, scaffold.Options{Check: check, Force: force})
			if err != nil {
				return fmt.Errorf("scaffold sync failed: %w", err)
			}

			w := cmd.OutOrStdout()
			for _, f := range result.Files {
				line := f.String()
				if f.Status == scaffold.StatusOutdated && !check {
					line += " (kept existing file; run with --force to update)"
				}
				fmt.Fprintln(w, line)
			}

			if check {
				if result.Drift() {
					fmt.Fprintln(w, "Scaffold templates are missing or outdated.")
					return exitCode(domain.ExitPartial)
				}
				fmt.Fprintln(w, "Scaffold templates are up-to-date.")
				return nil
			}
			fmt.Fprintln(w, "Scaffold sync complete.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Report drift without writing; exit 1 when files are missing or outdated")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite outdated files after writing timestamped .bak backups")
	return cmd
}
