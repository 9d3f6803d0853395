package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bizfeed/docq/mongodriver"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	inspectSample int
	inspectJSON   bool
)

func inspectCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "inspect [collection]",
		Short: "Describe the fields of a MongoDB collection",
		Long: `Describe the fields of a collection by merging its $jsonSchema
validator, when it has one, with the fields seen in a sample of documents.
Only available with database.type mongodb.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := newService(ctx)
			if err != nil {
				return err
			}
			defer s.Close(ctx) //nolint:errcheck

			ms, ok := s.Store().(*mongodriver.Store)
			if !ok {
				return errors.Errorf("inspect needs a mongodb database, not %q", conf.DB.Type)
			}

			fields, err := ms.Fields(ctx, args[0], inspectSample)
			if err != nil {
				return err
			}
			if inspectJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(fields)
			}
			return printFields(cmd.OutOrStdout(), fields)
		},
	}
	c.Flags().IntVar(&inspectSample, "sample", 100, "Number of documents to sample")
	c.Flags().BoolVar(&inspectJSON, "json", false, "Print JSON instead of a table")
	return c
}

func printFields(w io.Writer, fields []mongodriver.FieldInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tARRAY\tREQUIRED\tSEEN")
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%d\n", f.Name, f.BSONType, f.IsArray, f.Required, f.Seen)
	}
	return tw.Flush()
}
