package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/mentis/internal/chat"
	"github.com/hyperjump/mentis/internal/cli"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var (
		names   []string
		message string
		topK    int
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about the diary; every selected retriever answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.setup()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				names = a.cfg.Chat.Retrievers
			}
			if topK <= 0 {
				topK = a.cfg.Chat.TopK
			}
			c, cleanup, err := a.components()
			if err != nil {
				return err
			}
			defer cleanup()

			retrievers, err := orderedRetrievers(c.Registry, names)
			if err != nil {
				return err
			}
			client, err := c.llm()
			if err != nil {
				return err
			}
			assistant := chat.NewAssistant(client, retrievers, topK, a.cfg.Retry.Policy(), a.logger)
			if msg := strings.TrimSpace(message); msg != "" {
				cli.WriteAnswers(cmd.OutOrStdout(), assistant.Ask(cmd.Context(), msg))
				return nil
			}
			return assistant.REPL(cmd.Context(), os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVarP(&names, "retriever", "r", nil, "retrievers that answer (default: chat.retrievers from config, else all)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "ask one question and exit instead of starting the REPL")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "passages retrieved per answer (default: chat.top_k from config)")
	return cmd
}
