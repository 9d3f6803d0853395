package main

import (
	"context"

	"github.com/bizfeed/docq/serv"
	"github.com/spf13/cobra"
)

var seedOnStart int

// servCmd is the cobra CLI command for the serve subcommand
func servCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"serv"},
		Short:   "Run the docq service",
		RunE:    cmdServ,
	}
	c.Flags().IntVar(&seedOnStart, "seed", 0, "Seed this many fake members per branch before starting")
	return c
}

// cmdServ is the handler for the serve subcommand
func cmdServ(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	serv.SetVersion(version)
	s, err := newService(ctx)
	if err != nil {
		return err
	}
	defer s.Close(context.Background()) //nolint:errcheck

	if seedOnStart > 0 {
		if err := seed(ctx, s.Store(), seedOnStart, 1); err != nil {
			return err
		}
	}
	return s.Start(ctx)
}
