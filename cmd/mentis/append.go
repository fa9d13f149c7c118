package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/cli"
	"github.com/hyperjump/mentis/internal/extract"
	"github.com/hyperjump/mentis/internal/retriever"
)

func newAppendCmd(flags *rootFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "append <retriever> [text...]",
		Short: "Add a diary entry to one retriever without re-encoding the diary",
		Long: "Append embeds the entry given as arguments, or read from --file, and adds it after the " +
			"stored passages. The next encode of the diary file replaces it.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.setup()
			if err != nil {
				return err
			}
			entry := strings.TrimSpace(strings.Join(args[1:], " "))
			if file != "" {
				if entry, err = extract.NewExtractor().Extract(file); err != nil {
					return err
				}
			}
			if strings.TrimSpace(entry) == "" {
				return fmt.Errorf("nothing to append: pass the entry as arguments or with --file")
			}
			c, cleanup, err := a.components()
			if err != nil {
				return err
			}
			defer cleanup()
			r, err := c.Registry.Get(args[0])
			if err != nil {
				return err
			}
			app, ok := r.(retriever.Appender)
			if !ok {
				return fmt.Errorf("retriever %s does not support appending", args[0])
			}
			out := cli.EncodeOutcome{Retriever: args[0]}
			out.Report, err = app.Append(cmd.Context(), entry)
			if err != nil {
				a.logger.Error("append failed", zap.String("retriever", args[0]), zap.Error(err))
				out.Report = nil
				out.Error = err.Error()
			}
			if werr := cli.WriteEncodeOutcomes(cmd.OutOrStdout(), []cli.EncodeOutcome{out}, a.format); werr != nil {
				return werr
			}
			if out.Error != "" {
				return errEncodeFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the entry from a file (.txt, .md, .pdf, .docx)")
	return cmd
}
