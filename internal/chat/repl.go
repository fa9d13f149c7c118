package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ExitWords end a REPL session.
var ExitWords = []string{"quit", "exit", "q"}

// REPL reads questions line by line from in and writes every retriever's answer to out until
// an exit word, EOF or cancellation.
func (a *Assistant) REPL(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Ask me anything about your diary: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if isExit(line) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if line == "" {
			fmt.Fprintln(out, "Please enter a question.")
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, ans := range a.Ask(ctx, line) {
			fmt.Fprintf(out, "\n[%s]\n", ans.Retriever)
			if ans.Err != nil {
				fmt.Fprintf(out, "Error: %v\n", ans.Err)
				continue
			}
			fmt.Fprintln(out, ans.Text)
		}
		fmt.Fprintln(out)
	}
}

func isExit(line string) bool {
	l := strings.ToLower(line)
	for _, w := range ExitWords {
		if l == w {
			return true
		}
	}
	return false
}
