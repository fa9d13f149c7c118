package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/mentis/internal/cli"
	"github.com/hyperjump/mentis/internal/models"
)

func newQueryCmd(flags *rootFlags) *cobra.Command {
	var (
		name string
		topK int
	)
	cmd := &cobra.Command{
		Use:   "query [flags] <text>",
		Short: "Retrieve passages with one retriever",
		Long:  "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.setup()
			if err != nil {
				return err
			}
			q := models.Query{Retriever: name, Text: buildQuery(args), TopK: topK}
			if err := q.Validate(); err != nil {
				return err
			}
			c, cleanup, err := a.components()
			if err != nil {
				return err
			}
			defer cleanup()
			r, err := c.Registry.Get(q.Retriever)
			if err != nil {
				return err
			}
			result, err := r.Query(cmd.Context(), q.Text, q.TopK)
			if err != nil {
				return err
			}
			return cli.WriteResult(cmd.OutOrStdout(), result, a.format)
		},
	}
	cmd.Flags().StringVarP(&name, "retriever", "r", "simple", "retriever to query")
	cmd.Flags().IntVarP(&topK, "top-k", "k", models.DefaultTopK, "number of passages")
	return cmd
}

// buildQuery joins the positional arguments into one query string, collapsing whitespace.
func buildQuery(args []string) string {
	return strings.Join(strings.Fields(strings.Join(args, " ")), " ")
}
