package main

import (
	"fmt"
	"strings"

	"codeloom/internal/codeblock"
	"codeloom/internal/types"

	"github.com/spf13/cobra"
)

var blocksLanguage string

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List tracked code blocks",
	RunE:  runBlocks,
}

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Inspect one code block",
}

var blockShowCmd = &cobra.Command{
	Use:   "show <block-id> [version-id]",
	Short: "Print a version's content (default: current)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runBlockShow,
}

var blockHistoryCmd = &cobra.Command{
	Use:   "history <block-id>",
	Short: "List a block's versions, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockHistory,
}

var blockDiffCmd = &cobra.Command{
	Use:   "diff <block-id> [version-id]",
	Short: "Print the diff a version introduced (default: current)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runBlockDiff,
}

func init() {
	blocksCmd.Flags().StringVarP(&blocksLanguage, "language", "l", "", "Only blocks in this language")
	blockCmd.AddCommand(blockShowCmd, blockHistoryCmd, blockDiffCmd)
}

func runBlocks(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	eng, cleanup, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	blocks := eng.Blocks().Blocks()
	if blocksLanguage != "" {
		blocks = eng.Blocks().ByLanguage(blocksLanguage)
	}

	out := cmd.OutOrStdout()
	if len(blocks) == 0 {
		fmt.Fprintln(out, "No code blocks.")
		return nil
	}
	for _, b := range blocks {
		fmt.Fprintf(out, "%s  %-10s  %2d versions  %s\n", shortID(b.ID), b.Language, len(b.Versions), b.Label())
	}
	return nil
}

func runBlockShow(cmd *cobra.Command, args []string) error {
	return withVersion(cmd, args, func(b *codeblock.Block, v *codeblock.Version) error {
		fmt.Fprintln(cmd.OutOrStdout(), v.Content)
		return nil
	})
}

func runBlockDiff(cmd *cobra.Command, args []string) error {
	return withVersion(cmd, args, func(b *codeblock.Block, v *codeblock.Version) error {
		out := cmd.OutOrStdout()
		if v.ParentVersionID == "" {
			fmt.Fprintf(out, "%s is the first version of %s\n", shortID(v.ID), b.Label())
			return nil
		}
		if v.Diff == "" {
			fmt.Fprintln(out, "No diff recorded.")
			return nil
		}
		fmt.Fprint(out, v.Diff)
		return nil
	})
}

func runBlockHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	eng, cleanup, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := resolveBlock(eng.Blocks(), args[0])
	if err != nil {
		return err
	}
	history, err := eng.Blocks().History(b.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", b.Label(), b.Language)
	for _, v := range history {
		mark := " "
		if v.ID == b.CurrentVersionID {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s  turn %s  %s  %s\n",
			mark, shortID(v.ID), shortID(v.TurnID), v.CreatedAt.Format("2006-01-02 15:04:05"), v.ChangeSummary)
	}
	return nil
}

func withVersion(cmd *cobra.Command, args []string, fn func(*codeblock.Block, *codeblock.Version) error) error {
	ctx, cancel := commandContext()
	defer cancel()
	eng, cleanup, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := resolveBlock(eng.Blocks(), args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		v, err := eng.Blocks().CurrentVersion(b.ID)
		if err != nil {
			return err
		}
		return fn(b, v)
	}

	history, err := eng.Blocks().History(b.ID)
	if err != nil {
		return err
	}
	for i := range history {
		if strings.HasPrefix(history[i].ID, args[1]) {
			return fn(b, &history[i])
		}
	}
	return types.NotFound("version", args[1])
}

// resolveBlock accepts a full id or a unique prefix.
func resolveBlock(s *codeblock.Store, arg string) (*codeblock.Block, error) {
	if b, err := s.Block(arg); err == nil {
		return b, nil
	}
	var match *codeblock.Block
	for _, b := range s.Blocks() {
		if strings.HasPrefix(b.ID, arg) {
			if match != nil {
				return nil, types.Invalid("block prefix %q is ambiguous", arg)
			}
			match = b
		}
	}
	if match == nil {
		return nil, types.NotFound("block", arg)
	}
	return match, nil
}
