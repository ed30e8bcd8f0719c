package main

import (
	"fmt"
	"strings"

	"codeloom/internal/conversation"
	"codeloom/internal/types"

	"github.com/spf13/cobra"
)

var historyAll bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the turns on the active branch",
	RunE:  runHistory,
}

var branchesCmd = &cobra.Command{
	Use:   "branches",
	Short: "List branches; the active one is marked with *",
	RunE:  runBranches,
}

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Create, switch or delete branches",
}

var (
	branchName string
	branchDesc string
)

var branchCreateCmd = &cobra.Command{
	Use:   "create <turn-id>",
	Short: "Fork a new active branch at a turn",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchCreate,
}

var branchSwitchCmd = &cobra.Command{
	Use:   "switch <branch>",
	Short: "Make a branch active (by id, id prefix or name)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchSwitch,
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <branch>",
	Short: "Delete a branch; its turns are kept",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchDelete,
}

func init() {
	historyCmd.Flags().BoolVar(&historyAll, "all", false, "Show every turn in creation order")
	branchCreateCmd.Flags().StringVar(&branchName, "name", "", "Branch name (default branch-N)")
	branchCreateCmd.Flags().StringVar(&branchDesc, "description", "", "Branch description")
	branchCmd.AddCommand(branchCreateCmd, branchSwitchCmd, branchDeleteCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	eng, cleanup, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	g := eng.Graph()
	var turns []*conversation.Turn
	if historyAll {
		turns = g.Turns()
	} else if b := g.ActiveBranch(); b != nil {
		for _, id := range b.Turns {
			t, err := g.Turn(id)
			if err != nil {
				return err
			}
			turns = append(turns, t)
		}
	}

	out := cmd.OutOrStdout()
	if len(turns) == 0 {
		fmt.Fprintln(out, "No turns yet.")
		return nil
	}
	for _, t := range turns {
		edit := "-"
		if t.EditAction != "" {
			edit = t.EditAction
			if t.EditTarget != "" {
				edit += ":" + t.EditTarget
			}
		}
		fmt.Fprintf(out, "%s  %-8s  %-16s  %d code  %s\n",
			shortID(t.ID), shortID(t.ParentID), edit, len(t.CodeBlocks), truncate(t.Prompt, 60))
	}
	return nil
}

func runBranches(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	eng, cleanup, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	branches := eng.Graph().Branches()
	if len(branches) == 0 {
		fmt.Fprintln(out, "No branches yet.")
		return nil
	}
	for _, b := range branches {
		mark := " "
		if b.Active {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s  %-12s  %d turns  tip %s  %s\n",
			mark, shortID(b.ID), b.Name, len(b.Turns), shortID(b.Tip()), b.Description)
	}
	return nil
}

func runBranchCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	eng, cleanup, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	t, err := resolveTurn(eng.Graph(), args[0])
	if err != nil {
		return err
	}
	id, err := eng.CreateBranch(ctx, t.ID, branchName, branchDesc)
	if err != nil {
		return err
	}
	b, err := eng.Graph().Branch(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created branch %s (%s) at turn %s\n", b.Name, shortID(b.ID), shortID(t.ID))
	return nil
}

func runBranchSwitch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	eng, cleanup, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := resolveBranch(eng.Graph(), args[0])
	if err != nil {
		return err
	}
	if err := eng.SetActiveBranch(ctx, b.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Switched to %s (%s)\n", b.Name, shortID(b.ID))
	return nil
}

func runBranchDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	eng, cleanup, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := resolveBranch(eng.Graph(), args[0])
	if err != nil {
		return err
	}
	if err := eng.DeleteBranch(ctx, b.ID); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Deleted %s\n", b.Name)
	if active := eng.Graph().ActiveBranch(); active != nil {
		fmt.Fprintf(out, "Active branch: %s\n", active.Name)
	}
	return nil
}

// resolveTurn accepts a full id or a unique prefix.
func resolveTurn(g *conversation.Graph, arg string) (*conversation.Turn, error) {
	if t, err := g.Turn(arg); err == nil {
		return t, nil
	}
	var match *conversation.Turn
	for _, t := range g.Turns() {
		if strings.HasPrefix(t.ID, arg) {
			if match != nil {
				return nil, types.Invalid("turn prefix %q is ambiguous", arg)
			}
			match = t
		}
	}
	if match == nil {
		return nil, types.NotFound("turn", arg)
	}
	return match, nil
}

// resolveBranch accepts a name, a full id or a unique id prefix.
func resolveBranch(g *conversation.Graph, arg string) (*conversation.Branch, error) {
	if b := g.BranchByName(arg); b != nil {
		return b, nil
	}
	var match *conversation.Branch
	for _, b := range g.Branches() {
		if strings.HasPrefix(b.ID, arg) {
			if match != nil {
				return nil, types.Invalid("branch prefix %q is ambiguous", arg)
			}
			match = b
		}
	}
	if match == nil {
		return nil, types.NotFound("branch", arg)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
