// Package cli implements the enso command-line interface.
package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/lwt-sadais/EnsoAI/internal/git"
)

func newWorktreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "worktree",
		Aliases: []string{"wt"},
		Short:   "Manage git worktrees",
		Long: `Manage the linked worktrees of a repository.

Each branch the app works on lives in its own worktree, so switching
branches never touches the main checkout. Worktrees are created under
the configured worktree root (default: .worktrees inside the repo).

Commands:
  list      List worktrees
  add       Check out a branch in a new worktree
  remove    Remove a worktree
  prune     Drop registrations for deleted worktree directories`,
	}

	cmd.AddCommand(newWorktreeListCmd())
	cmd.AddCommand(newWorktreeAddCmd())
	cmd.AddCommand(newWorktreeRemoveCmd())
	cmd.AddCommand(newWorktreePruneCmd())

	return cmd
}

func newWorktreeListCmd() *cobra.Command {
	var (
		repoPath   string
		withStatus bool
		baseBranch string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List worktrees",
		Long: `List all worktrees of the repository.

With --status, each worktree is additionally probed for uncommitted
changes and commits ahead of or behind the base branch. This costs a
few extra git calls per worktree.

Example:
  enso worktree list
  enso worktree list --status
  enso worktree list --status --base develop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, _, err := repoContext(repoPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if withStatus {
				base := baseBranch
				if base == "" {
					if main, err := gc.MainWorktree(); err == nil {
						base = main.Branch
					}
				}
				statuses, err := gc.ListWorktreesWithStatus(base)
				if err != nil {
					return fmt.Errorf("list worktrees: %w", err)
				}
				if jsonOut {
					return printJSON(out, statuses)
				}
				rows := make([][]string, 0, len(statuses))
				for _, st := range statuses {
					rows = append(rows, worktreeRow(st.Worktree, statusMarkers(st)))
				}
				renderWorktreeTable(out, rows)
				return nil
			}

			worktrees, err := gc.ListWorktrees()
			if err != nil {
				return fmt.Errorf("list worktrees: %w", err)
			}
			if jsonOut {
				return printJSON(out, worktrees)
			}
			rows := make([][]string, 0, len(worktrees))
			for _, wt := range worktrees {
				rows = append(rows, worktreeRow(wt, worktreeMarkers(wt)))
			}
			renderWorktreeTable(out, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")
	cmd.Flags().BoolVar(&withStatus, "status", false, "include dirty state and ahead/behind counts")
	cmd.Flags().StringVar(&baseBranch, "base", "", "base branch for ahead/behind (default: main worktree branch)")

	return cmd
}

func newWorktreeAddCmd() *cobra.Command {
	var (
		repoPath string
		dir      string
	)

	cmd := &cobra.Command{
		Use:   "add <branch>",
		Short: "Check out a branch in a new worktree",
		Long: `Check out a branch in its own worktree.

An existing branch is checked out directly; a missing one is created at
HEAD first. The worktree directory defaults to the configured worktree
root with a name derived from the branch.

Example:
  enso worktree add feature/login
  enso worktree add feature/login --path ../login`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch := args[0]

			gc, cfg, err := repoContext(repoPath)
			if err != nil {
				return err
			}

			path := dir
			if path == "" {
				root := cfg.Worktree.Root
				if !filepath.IsAbs(root) {
					root = filepath.Join(gc.RepoPath(), root)
				}
				path = filepath.Join(root, git.SanitizeBranchName(branch))
			}

			opts := git.AddWorktreeOptions{Path: path}
			if gc.BranchExists(branch) {
				opts.Branch = branch
			} else {
				opts.NewBranch = branch
			}

			if err := gc.AddWorktree(opts); err != nil {
				return err
			}

			if jsonOut {
				wt, err := gc.WorktreeFor(path)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), wt)
			}

			if opts.NewBranch != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Created worktree %s on new branch %s\n", path, branch)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Created worktree %s on %s\n", path, branch)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")
	cmd.Flags().StringVar(&dir, "path", "", "worktree directory (default: <worktree root>/<branch>)")

	return cmd
}

func newWorktreeRemoveCmd() *cobra.Command {
	var (
		repoPath     string
		force        bool
		deleteBranch bool
	)

	cmd := &cobra.Command{
		Use:     "remove <path>",
		Aliases: []string{"rm"},
		Short:   "Remove a worktree",
		Long: `Remove a linked worktree.

A worktree with uncommitted changes is only removed with --force.
The main worktree can never be removed.

Example:
  enso worktree remove .worktrees/feature-login
  enso worktree remove .worktrees/feature-login --force --delete-branch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			gc, _, err := repoContext(repoPath)
			if err != nil {
				return err
			}

			opts := git.RemoveWorktreeOptions{
				Path:         path,
				Force:        force,
				DeleteBranch: deleteBranch,
			}
			if deleteBranch {
				wt, err := gc.WorktreeFor(path)
				if err != nil {
					return err
				}
				if wt.Branch == "" {
					return fmt.Errorf("worktree %s has no branch to delete", path)
				}
				opts.Branch = wt.Branch
			}

			if err := gc.RemoveWorktree(opts); err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"status": "removed",
					"path":   path,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed worktree %s\n", path)
			if opts.Branch != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted branch %s\n", opts.Branch)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove even with uncommitted changes")
	cmd.Flags().BoolVar(&deleteBranch, "delete-branch", false, "also delete the worktree's branch")

	return cmd
}

func newWorktreePruneCmd() *cobra.Command {
	var repoPath string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop registrations for deleted worktree directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, _, err := repoContext(repoPath)
			if err != nil {
				return err
			}

			if err := gc.PruneWorktrees(); err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "pruned"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Pruned stale worktree registrations.")
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")

	return cmd
}

var worktreeHeaders = []string{"PATH", "BRANCH", "HEAD", "STATUS"}

// worktreeRow builds one table row. The branch column falls back to the
// detached HEAD marker git itself uses.
func worktreeRow(wt git.Worktree, status string) []string {
	branch := wt.Branch
	if branch == "" {
		branch = "(detached)"
	}
	head := wt.Head
	if len(head) > 7 {
		head = head[:7]
	}
	return []string{wt.Path, branch, head, status}
}

// worktreeMarkers summarizes registry flags for the status column.
func worktreeMarkers(wt git.Worktree) string {
	var parts []string
	if wt.IsMainWorktree {
		parts = append(parts, "main")
	}
	if wt.Bare {
		parts = append(parts, "bare")
	}
	if wt.IsLocked {
		parts = append(parts, "locked")
	}
	if wt.Prunable {
		parts = append(parts, "prunable")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

// statusMarkers extends the registry flags with working-tree state.
func statusMarkers(st git.WorktreeStatus) string {
	var parts []string
	if st.IsMainWorktree {
		parts = append(parts, "main")
	}
	if st.IsLocked {
		parts = append(parts, "locked")
	}
	if st.Prunable {
		parts = append(parts, "prunable")
	}
	if st.Dirty {
		parts = append(parts, "dirty")
	}
	if st.Ahead > 0 {
		parts = append(parts, fmt.Sprintf("ahead %d", st.Ahead))
	}
	if st.Behind > 0 {
		parts = append(parts, fmt.Sprintf("behind %d", st.Behind))
	}
	if len(parts) == 0 {
		return "clean"
	}
	return strings.Join(parts, ", ")
}

// renderWorktreeTable writes rows as a table: lipgloss-styled when stdout
// is a terminal, plain tabwriter output when piped.
func renderWorktreeTable(out io.Writer, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No worktrees found.")
		return
	}

	if !styledOutput() {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, strings.Join(worktreeHeaders, "\t"))
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		_ = w.Flush()
		return
	}

	// Keep the table inside the terminal by shortening the path column;
	// the other columns stay narrow on their own.
	maxPath := terminalWidth(120) - 45
	if maxPath < 24 {
		maxPath = 24
	}
	for _, row := range rows {
		row[0] = truncate(row[0], maxPath)
	}

	t := table.New().
		Headers(worktreeHeaders...).
		Rows(rows...).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		BorderRow(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).PaddingRight(2)
			}
			return lipgloss.NewStyle().PaddingRight(2)
		})

	fmt.Fprintln(out, t.String())
}
