package main

import (
	"bufio"
	"fmt"
	"strings"

	"codeloom/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	chatParent string
	chatRoot   bool
	chatModel  string
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt, or start a REPL when no prompt is given",
	Long: `Runs one exchange against the active branch tip (or --parent).

Without arguments chat reads prompts from stdin, one per line:
  /new <prompt>   start a new conversation thread
  /quit           leave`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatParent, "parent", "", "Continue from this turn id (or unique prefix)")
	chatCmd.Flags().BoolVar(&chatRoot, "root", false, "Start a new conversation thread")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Override the configured model")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	eng, cleanup, err := openEngine(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		req := session.ExchangeRequest{
			Prompt: strings.Join(args, " "),
			Root:   chatRoot,
			Model:  chatModel,
		}
		if chatParent != "" {
			t, err := resolveTurn(eng.Graph(), chatParent)
			if err != nil {
				return err
			}
			req.ParentID = t.ID
		}
		return exchange(cmd, eng, req)
	}

	fmt.Fprintf(out, "Session %s (%d turns). /quit to leave.\n", eng.Name(), len(eng.Graph().Turns()))
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		}

		req := session.ExchangeRequest{Prompt: line, Model: chatModel}
		if rest, ok := strings.CutPrefix(line, "/new "); ok {
			req.Prompt = rest
			req.Root = true
		}
		if err := exchange(cmd, eng, req); err != nil {
			// Keep the REPL alive; the turn was not recorded.
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func exchange(cmd *cobra.Command, eng *session.Engine, req session.ExchangeRequest) error {
	ctx, cancel := commandContext()
	defer cancel()

	res, err := eng.Exchange(ctx, req)
	if err != nil {
		return err
	}
	logger.Info("exchange complete",
		zap.String("turn", res.Turn.ID),
		zap.Int("input_tokens", res.Turn.Usage.InputTokens),
		zap.Int("output_tokens", res.Turn.Usage.OutputTokens),
		zap.Duration("duration", res.Duration))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Turn.Response)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "turn %s  %s -> %s\n", shortID(res.Turn.ID), res.Intent.Action, res.Intent.Target)
	for _, ref := range res.Turn.CodeBlocks {
		fmt.Fprintf(out, "  %s %-10s %s (v%s)\n", shortID(ref.BlockID), ref.Language, ref.Label, shortID(ref.VersionID))
	}
	return nil
}
