package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and build details",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), BuildDetails())
		},
	}
}

// BuildDetails returns a one line summary of the build
func BuildDetails() string {
	v, c, d := version, commit, date
	if v == "" {
		v = "not-set"
	}
	if c == "" {
		c = "none"
	}
	if d == "" {
		d = "unknown"
	}
	return fmt.Sprintf("docq %s (commit %s, built %s, %s %s/%s)",
		v, c, d, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
