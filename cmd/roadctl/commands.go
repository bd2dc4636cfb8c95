package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/WessleyAI/roadwise/engine/app"
	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/geodiff"
	"github.com/WessleyAI/roadwise/engine/rag"
	"github.com/WessleyAI/roadwise/engine/roadctx"
	"github.com/WessleyAI/roadwise/pkg/config"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newScanCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List every road version record in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd, app.Options{}, false, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			recs := a.Catalog.Records()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), recs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROAD\tVERSION\tPATH")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Road, r.Version, r.Path)
			}
			fmt.Fprintf(tw, "\n%d records, %d roads\n", len(recs), len(a.Catalog.RoadNames()))
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func newVersionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <road>",
		Short: "List the versions of roads matching a name, latest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, app.Options{}, false, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			recs := roadctx.SortVersions(a.Catalog.FindVersions(args[0]))
			if len(recs) == 0 {
				return fmt.Errorf("road %q: %w", args[0], domain.ErrNotFound)
			}
			for _, r := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Road, r.Version)
			}
			return nil
		},
	}
}

func newSummaryCmd(opts *options) *cobra.Command {
	var (
		allVersions bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "summary <road>...",
		Short: "Print traffic summaries for roads",
		Long:  "summary aggregates the segment rows of each matching road. Only the latest version is shown unless --all-versions is set.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, app.Options{}, false, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.Builder.Build(cmd.Context(), args, allVersions)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), c)
			}
			if c.Len() == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No traffic data is available for these roads.")
				return nil
			}
			texts := c.Texts()
			for i, k := range c.Keys {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", k, texts[k])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&allVersions, "all-versions", false, "summarize every version instead of the latest")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print summaries as JSON")
	return cmd
}

func newResolveCmd(opts *options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "resolve <query>",
		Short: "Show which roads a question refers to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, app.Options{}, true, func(c *config.Config) {
				if kind != "" {
					c.Resolver.Kind = kind
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			roads, err := a.Resolver.Resolve(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(roads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching roads")
				return nil
			}
			for _, r := range roads {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "resolver: embedding, substring or fuzzy (default from config)")
	return cmd
}

func newDiffCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "diff <pathA> <pathB>",
		Short: "Compare two road files row by row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := geodiff.CompareFiles(args[0], args[1])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			fmt.Fprint(cmd.OutOrStdout(), rep.Format())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newAskCmd(opts *options) *cobra.Command {
	var (
		allVersions bool
		stream      bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question about roads with the chat model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, app.Options{Chat: true}, true, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			q := rag.Question{Question: domain.Question{Text: strings.Join(args, " "), Versions: allVersions}}
			out := cmd.OutOrStdout()
			if !stream {
				ans, err := a.RAG.Ask(cmd.Context(), q)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ans.Text)
				return nil
			}

			p, err := a.RAG.Prepare(cmd.Context(), q)
			if err != nil {
				return err
			}
			if _, err := a.RAG.Stream(cmd.Context(), p, func(tok string) { fmt.Fprint(out, tok) }); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&allVersions, "all-versions", false, "include every version of the matched roads")
	cmd.Flags().BoolVar(&stream, "stream", false, "print tokens as they arrive")
	return cmd
}
