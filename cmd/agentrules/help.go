package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagGroup defines a named group of flags for help output.
type flagGroup struct {
	title string
	flags []string
}

// flagGroups defines the logical groupings for CLI flags.
// Flags not listed here appear under "Other Flags".
var flagGroups = []flagGroup{
	{
		title: "Run Settings",
		flags: []string{"concurrency", "timeout", "retries", "verbose", "quiet"},
	},
	{
		title: "Agent Settings",
		flags: []string{"provider", "model", "offline", "researcher"},
	},
	{
		title: "Output",
		flags: []string{"rules-filename", "phase-output"},
	},
	{
		title: "Filtering",
		flags: []string{"exclude-dir", "exclude-pattern"},
	},
	{
		title: "Advanced",
		flags: []string{"no-config"},
	},
}

// setGroupedUsage prints subcommands followed by the flag groups. Flags not
// in any group (help, version, new flags) are listed last.
func setGroupedUsage(cmd *cobra.Command) {
	cmd.SetUsageFunc(func(c *cobra.Command) error {
		w := c.OutOrStderr()
		fmt.Fprintf(w, "Usage:\n  %s\n", c.UseLine())
		if c.HasAvailableSubCommands() {
			fmt.Fprintf(w, "  %s [command]\n\nCommands:\n", c.CommandPath())
			for _, sub := range c.Commands() {
				if sub.IsAvailableCommand() {
					fmt.Fprintf(w, "  %-12s %s\n", sub.Name(), sub.Short)
				}
			}
		}

		placed := make(map[string]bool)
		section := func(title string, fs *pflag.FlagSet) {
			if usages := fs.FlagUsages(); strings.TrimSpace(usages) != "" {
				fmt.Fprintf(w, "\n%s:\n%s", title, usages)
			}
		}

		for _, group := range flagGroups {
			fs := pflag.NewFlagSet(group.title, pflag.ContinueOnError)
			for _, name := range group.flags {
				if f := c.Flags().Lookup(name); f != nil {
					fs.AddFlag(f)
					placed[name] = true
				}
			}
			section(group.title, fs)
		}

		other := pflag.NewFlagSet("other", pflag.ContinueOnError)
		c.Flags().VisitAll(func(f *pflag.Flag) {
			if !placed[f.Name] {
				other.AddFlag(f)
			}
		})
		section("Other Flags", other)

		if c.HasAvailableSubCommands() {
			fmt.Fprintf(w, "\nUse \"%s [command] --help\" for more about a command.\n", c.CommandPath())
		}
		return nil
	})
}
