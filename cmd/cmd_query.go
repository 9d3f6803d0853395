package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/bizfeed/docq/core"
	"github.com/bizfeed/docq/i18n"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	queryPage int64
	querySize int64
	queryLang string
)

func queryCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "query [name]",
		Short: "Run a named query file and print one page of results",
		Long: `Run one of the query files found under query.path and print
the requested page as relaxed extended JSON. Without a name the available
queries are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: cmdQuery,
	}
	c.Flags().Int64Var(&queryPage, "page", 0, "Page number, starting at 1")
	c.Flags().Int64Var(&querySize, "size", 0, "Page size")
	c.Flags().StringVar(&queryLang, "lang", "", "Language for error messages")
	return c
}

func cmdQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := newService(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx) //nolint:errcheck

	out := cmd.OutOrStdout()

	if len(args) == 0 {
		names := s.Queries()
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
		return nil
	}

	res, err := s.RunQuery(ctx, args[0], queryPage, querySize)
	if err != nil {
		// the translated message is what end users see; keep the detail in the log
		log.Debugf("query %s: %s", args[0], err)
		return errors.New(i18n.Error(s.Context(ctx, queryLang), err))
	}
	return printPage(out, res)
}

func printPage(w io.Writer, res core.PagingResult[bson.M]) error {
	doc := bson.D{
		{Key: "total_items", Value: res.TotalItems},
		{Key: "total_pages", Value: res.TotalPages},
		{Key: "page", Value: res.Page},
		{Key: "size", Value: res.Size},
		{Key: "items", Value: res.Items},
	}
	return printJSON(w, doc)
}

func printJSON(w io.Writer, v any) error {
	b, err := bson.MarshalExtJSONIndent(v, false, false, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding output")
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain [name]",
		Short: "Print the data and count pipelines of a named query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(context.Background())
			if err != nil {
				return err
			}
			defer s.Close(context.Background()) //nolint:errcheck

			c, err := s.Explain(args[0])
			if err != nil {
				return err
			}
			return printExplain(cmd.OutOrStdout(), c)
		},
	}
}

func printExplain(w io.Writer, c core.Compiled) error {
	return printJSON(w, bson.D{
		{Key: "collection", Value: c.Data.Collection},
		{Key: "data", Value: c.Data.BSON()},
		{Key: "count", Value: c.Count.BSON()},
	})
}
