package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/cli"
	"github.com/hyperjump/mentis/internal/eval"
	"github.com/hyperjump/mentis/internal/retriever"
)

func newEvaluateCmd(flags *rootFlags) *cobra.Command {
	var (
		queriesPath string
		names       []string
		topK        int
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score every retriever on the evaluation queries with the LLM judge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.setup()
			if err != nil {
				return err
			}
			if queriesPath == "" {
				queriesPath = a.cfg.Evaluation.QueriesPath
			}
			if topK <= 0 {
				topK = a.cfg.Evaluation.TopK
			}
			queries, err := eval.LoadQueries(queriesPath)
			if err != nil {
				return err
			}
			c, cleanup, err := a.components()
			if err != nil {
				return err
			}
			defer cleanup()

			selected, err := selectRetrievers(c.Registry, names)
			if err != nil {
				return err
			}
			judge, err := c.Judge()
			if err != nil {
				return err
			}
			harness := eval.NewHarness(judge,
				eval.WithResultsDir(a.cfg.Evaluation.ResultsDir),
				eval.WithTopK(topK),
				eval.WithLogger(a.logger),
			)
			reports, evalErr := harness.Evaluate(cmd.Context(), selected, queries)
			if err := cli.WriteEvalReports(cmd.OutOrStdout(), reports, a.format); err != nil {
				return err
			}
			if evalErr != nil {
				return fmt.Errorf("evaluation incomplete: %w", evalErr)
			}
			a.logger.Info("evaluation artifacts written", zap.String("dir", a.cfg.Evaluation.ResultsDir))
			return nil
		},
	}
	cmd.Flags().StringVar(&queriesPath, "queries", "", "queries file (default: evaluation.queries_path from config)")
	cmd.Flags().StringSliceVarP(&names, "retriever", "r", nil, "retrievers to evaluate (default: all)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "contexts retrieved per query (default: evaluation.top_k from config)")
	return cmd
}

// selectRetrievers returns the named retrievers, or all of them when names is empty.
func selectRetrievers(reg *retriever.Registry, names []string) (map[string]retriever.Retriever, error) {
	if len(names) == 0 {
		return reg.All(), nil
	}
	out := make(map[string]retriever.Retriever, len(names))
	for _, name := range names {
		r, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		out[name] = r
	}
	return out, nil
}

// orderedRetrievers returns the named retrievers in the given order, or all in name order.
func orderedRetrievers(reg *retriever.Registry, names []string) ([]retriever.Retriever, error) {
	if len(names) == 0 {
		names = reg.Names()
	}
	out := make([]retriever.Retriever, 0, len(names))
	for _, name := range names {
		r, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
