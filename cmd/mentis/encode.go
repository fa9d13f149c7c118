package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/cli"
	"github.com/hyperjump/mentis/internal/extract"
	"github.com/hyperjump/mentis/internal/retriever"
)

// errEncodeFailed reports that at least one retriever failed; the outcomes are already printed.
var errEncodeFailed = errors.New("encoding failed")

func newEncodeAllCmd(flags *rootFlags) *cobra.Command {
	var diaryPath string
	cmd := &cobra.Command{
		Use:   "encode-all",
		Short: "Encode the diary with every configured retriever",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.setup()
			if err != nil {
				return err
			}
			return a.runEncode(cmd.Context(), cmd, diaryPath, a.cfg.RetrieverNames())
		},
	}
	cmd.Flags().StringVar(&diaryPath, "diary", "", "diary file (default: diary_path from config)")
	return cmd
}

func newEncodeCmd(flags *rootFlags) *cobra.Command {
	var (
		diaryPath     string
		summariesOnly bool
	)
	cmd := &cobra.Command{
		Use:   "encode <retriever>",
		Short: "Encode the diary with one retriever",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.setup()
			if err != nil {
				return err
			}
			if summariesOnly {
				return a.runEncodeSummaries(cmd.Context(), cmd, args[0])
			}
			return a.runEncode(cmd.Context(), cmd, diaryPath, args)
		},
	}
	cmd.Flags().StringVar(&diaryPath, "diary", "", "diary file (default: diary_path from config)")
	cmd.Flags().BoolVar(&summariesOnly, "summaries-only", false, "rebuild summaries from already stored chunks (summary retrievers only)")
	return cmd
}

func (a *app) runEncode(ctx context.Context, cmd *cobra.Command, diaryPath string, names []string) error {
	if diaryPath == "" {
		diaryPath = a.cfg.DiaryPath
	}
	diary, err := extract.NewExtractor().Extract(diaryPath)
	if err != nil {
		return err
	}
	c, cleanup, err := a.components()
	if err != nil {
		return err
	}
	defer cleanup()

	outcomes := encodeRetrievers(ctx, c.Registry, names, diary, a.logger)
	if err := cli.WriteEncodeOutcomes(cmd.OutOrStdout(), outcomes, a.format); err != nil {
		return err
	}
	for _, o := range outcomes {
		if o.Error != "" {
			return errEncodeFailed
		}
	}
	return nil
}

// encodeRetrievers encodes diary with each named retriever in order, continuing past failures.
func encodeRetrievers(ctx context.Context, reg *retriever.Registry, names []string, diary string, logger *zap.Logger) []cli.EncodeOutcome {
	outcomes := make([]cli.EncodeOutcome, 0, len(names))
	for _, name := range names {
		out := cli.EncodeOutcome{Retriever: name}
		r, err := reg.Get(name)
		if err == nil {
			logger.Info("encoding", zap.String("retriever", name), zap.String("collection", r.Collection()))
			out.Report, err = r.Encode(ctx, diary)
		}
		if err != nil {
			logger.Error("encode failed", zap.String("retriever", name), zap.Error(err))
			out.Report = nil
			out.Error = err.Error()
		}
		outcomes = append(outcomes, out)
		if ctx.Err() != nil {
			break
		}
	}
	return outcomes
}

func (a *app) runEncodeSummaries(ctx context.Context, cmd *cobra.Command, name string) error {
	c, cleanup, err := a.components()
	if err != nil {
		return err
	}
	defer cleanup()
	r, err := c.Registry.Get(name)
	if err != nil {
		return err
	}
	sr, ok := r.(*retriever.SummaryRag)
	if !ok {
		return fmt.Errorf("retriever %s is not a summary retriever", name)
	}
	out := cli.EncodeOutcome{Retriever: name}
	out.Report, err = sr.EncodeSummaries(ctx)
	if err != nil {
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
}
