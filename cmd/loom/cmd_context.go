package main

import (
	"fmt"
	"strings"

	"codeloom/internal/retrieval"
	"codeloom/internal/session"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	contextRaw   bool
	contextTurns int
)

var contextCmd = &cobra.Command{
	Use:   "context [prompt]",
	Short: "Preview the retrieved context and composed prompt without calling the model",
	RunE:  runContext,
}

func init() {
	contextCmd.Flags().BoolVar(&contextRaw, "raw", false, "Print the composed prompt text only")
	contextCmd.Flags().IntVar(&contextTurns, "turns", 0, "Override the retrieval turn limit")
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	eng, cleanup, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	req := session.ExchangeRequest{Prompt: strings.Join(args, " ")}
	if contextTurns > 0 {
		opts := retrieval.DefaultOptions()
		opts.TurnLimit = contextTurns
		req.Retrieval = &opts
	}
	bundle, composed, err := eng.Preview(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if contextRaw {
		fmt.Fprintln(out, composed.Text)
		return nil
	}

	var md strings.Builder
	md.WriteString("# Context preview\n\n")
	fmt.Fprintf(&md, "- turns: %d\n", len(bundle.Turns))
	fmt.Fprintf(&md, "- code blocks: %d\n", len(bundle.CodeBlocks))
	fmt.Fprintf(&md, "- memories: %d", len(bundle.Memories))
	if bundle.Degraded {
		md.WriteString(" (memory search failed)")
	}
	md.WriteString("\n")
	fmt.Fprintf(&md, "- prompt tokens: ~%d (%d layers, %d excluded)\n\n",
		composed.TokenCount, len(composed.Used), len(composed.Excluded))
	if bundle.Context != "" {
		md.WriteString(bundle.Context)
		md.WriteString("\n")
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	rendered, err := r.Render(md.String())
	if err != nil {
		logger.Sugar().Warnf("markdown render failed: %v", err)
		rendered = md.String()
	}
	fmt.Fprint(out, rendered)
	return nil
}
