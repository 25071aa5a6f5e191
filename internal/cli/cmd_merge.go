// Package cli implements the enso command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lwt-sadais/EnsoAI/internal/git"
)

func newMergeCmd() *cobra.Command {
	var (
		repoPath       string
		intoBranch     string
		strategy       string
		message        string
		allowFF        bool
		noStash        bool
		deleteWorktree bool
		deleteBranch   bool
	)

	cmd := &cobra.Command{
		Use:   "merge <worktree-path>",
		Short: "Merge a worktree's branch into another branch",
		Long: `Merge the branch checked out in a worktree into a target branch.

The target branch must be checked out in some worktree, normally the
main one. Uncommitted changes in either tree are stashed before the
merge and restored afterwards, unless auto-stash is disabled.

When the merge conflicts, it is left in progress: inspect it with
'enso merge state', settle files with 'enso merge resolve', then finish
with 'enso merge continue' or back out with 'enso merge abort'.

Strategies:
  merge    Merge commit (no fast-forward unless --ff is given)
  squash   Single squashed commit on the target branch
  rebase   Replay the target's commits onto the source branch

Example:
  enso merge .worktrees/feature-login --into main
  enso merge .worktrees/feature-login --into main -s squash -m "Add login"
  enso merge .worktrees/feature-login --into main --delete-worktree --delete-branch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, cfg, err := repoContext(repoPath)
			if err != nil {
				return err
			}

			logger := newLogger(cfg)
			engine, closeDB := newEngine(gc, cfg, logger)
			defer closeDB()

			if strategy == "" {
				strategy = cfg.Merge.DefaultStrategy
			}
			noFF := cfg.Merge.NoFF
			if cmd.Flags().Changed("ff") {
				noFF = !allowFF
			}
			autoStash := cfg.Merge.AutoStash
			if noStash {
				autoStash = false
			}

			result, err := engine.Merge(git.MergeRequest{
				WorktreePath:             args[0],
				TargetBranch:             intoBranch,
				Strategy:                 git.Strategy(strategy),
				NoFF:                     &noFF,
				Message:                  message,
				AutoStash:                autoStash,
				DeleteWorktreeAfterMerge: deleteWorktree,
				DeleteBranchAfterMerge:   deleteBranch,
			})
			if err != nil {
				return err
			}

			return printMergeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")
	cmd.Flags().StringVar(&intoBranch, "into", "", "target branch to merge into (required)")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "merge strategy: merge, squash, or rebase")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message for the merge or squash commit")
	cmd.Flags().BoolVar(&allowFF, "ff", false, "allow fast-forward instead of forcing a merge commit")
	cmd.Flags().BoolVar(&noStash, "no-stash", false, "do not auto-stash uncommitted changes")
	cmd.Flags().BoolVar(&deleteWorktree, "delete-worktree", false, "remove the source worktree after a completed merge")
	cmd.Flags().BoolVar(&deleteBranch, "delete-branch", false, "delete the source branch after a completed merge")
	_ = cmd.MarkFlagRequired("into")

	cmd.AddCommand(newMergeStateCmd())
	cmd.AddCommand(newMergeContinueCmd())
	cmd.AddCommand(newMergeAbortCmd())
	cmd.AddCommand(newMergeResolveCmd())

	return cmd
}

func newMergeStateCmd() *cobra.Command {
	var repoPath string

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the state of an in-progress merge",
		Long: `Show whether a merge is in progress and which files conflict.

The state is derived from the repository on every call, so it stays
correct after restarts or external git commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, cfg, err := repoContext(repoPath)
			if err != nil {
				return err
			}

			engine, closeDB := newEngine(gc, cfg, newLogger(cfg))
			defer closeDB()

			state, err := engine.State()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, state)
			}

			if !state.InProgress {
				fmt.Fprintln(out, "No merge in progress.")
				return nil
			}

			source := state.SourceBranch
			if source == "" {
				source = "?"
			}
			target := state.TargetBranch
			if target == "" {
				target = "?"
			}
			fmt.Fprintf(out, "Merge in progress (%s): %s → %s\n", state.Kind, source, target)

			if len(state.Conflicts) == 0 {
				fmt.Fprintln(out, "\nAll conflicts resolved. Run: enso merge continue")
				return nil
			}

			fmt.Fprintf(out, "\n%d conflicted file(s):\n", len(state.Conflicts))
			for _, c := range state.Conflicts {
				fmt.Fprintf(out, "  %s (%s)\n", c.File, c.Type)
			}
			fmt.Fprintln(out, "\nResolve with: enso merge resolve <file> --use ours|theirs")
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")

	return cmd
}

func newMergeContinueCmd() *cobra.Command {
	var (
		repoPath       string
		message        string
		deleteWorktree string
		deleteBranch   string
	)

	cmd := &cobra.Command{
		Use:   "continue",
		Short: "Complete a merge after resolving conflicts",
		Long: `Complete an in-progress merge once every conflict is resolved.

Stashes set aside by the original merge are restored afterwards. The
cleanup flags re-state what the original request asked for, since that
request ended when the merge halted:

  --delete-worktree <path>   remove this worktree after completion
  --delete-branch <name>     delete this branch after completion

Example:
  enso merge continue
  enso merge continue -m "Merge feature/login"
  enso merge continue --delete-worktree .worktrees/feature-login --delete-branch feature/login`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, cfg, err := repoContext(repoPath)
			if err != nil {
				return err
			}

			engine, closeDB := newEngine(gc, cfg, newLogger(cfg))
			defer closeDB()

			result, err := engine.ContinueMerge(message, git.CleanupOptions{
				WorktreePath:   deleteWorktree,
				SourceBranch:   deleteBranch,
				DeleteWorktree: deleteWorktree != "",
				DeleteBranch:   deleteBranch != "",
			})
			if err != nil {
				return err
			}

			return printMergeResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message for the completing commit")
	cmd.Flags().StringVar(&deleteWorktree, "delete-worktree", "", "worktree to remove after completion")
	cmd.Flags().StringVar(&deleteBranch, "delete-branch", "", "branch to delete after completion")

	return cmd
}

func newMergeAbortCmd() *cobra.Command {
	var repoPath string

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Abort an in-progress merge",
		Long: `Abort an in-progress merge and restore the pre-merge state.

Aborting when no merge is in progress is not an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, cfg, err := repoContext(repoPath)
			if err != nil {
				return err
			}

			engine, closeDB := newEngine(gc, cfg, newLogger(cfg))
			defer closeDB()

			if err := engine.AbortMerge(); err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "aborted"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Merge aborted.")
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")

	return cmd
}

func newMergeResolveCmd() *cobra.Command {
	var (
		repoPath    string
		use         string
		contentPath string
	)

	cmd := &cobra.Command{
		Use:   "resolve <file>",
		Short: "Resolve one conflicted file",
		Long: `Resolve one conflicted file of an in-progress merge.

Either pick a side with --use, or supply the fully resolved content
with --content. Binary and delete conflicts only support --use.

  --use ours     keep the target branch's version
  --use theirs   take the source branch's version
  --use delete   remove the file
  --content <path>   stage the given file's content as the resolution

Example:
  enso merge resolve app.go --use theirs
  enso merge resolve app.go --content /tmp/app-resolved.go`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]

			if (use == "") == (contentPath == "") {
				return fmt.Errorf("exactly one of --use or --content is required")
			}

			opts := git.ResolveOptions{File: file, Resolution: use}
			if contentPath != "" {
				data, err := os.ReadFile(contentPath)
				if err != nil {
					return fmt.Errorf("read resolution content: %w", err)
				}
				content := string(data)
				opts.Content = &content
				opts.Resolution = ""
			}

			gc, cfg, err := repoContext(repoPath)
			if err != nil {
				return err
			}

			engine, closeDB := newEngine(gc, cfg, newLogger(cfg))
			defer closeDB()

			if err := engine.ResolveConflict(opts); err != nil {
				return err
			}

			state, err := engine.State()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, map[string]any{
					"status":    "resolved",
					"file":      file,
					"remaining": len(state.Conflicts),
				})
			}

			fmt.Fprintf(out, "Resolved %s\n", file)
			if len(state.Conflicts) == 0 {
				fmt.Fprintln(out, "All conflicts resolved. Run: enso merge continue")
			} else {
				fmt.Fprintf(out, "%d conflict(s) remaining.\n", len(state.Conflicts))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")
	cmd.Flags().StringVar(&use, "use", "", "resolution side: ours, theirs, or delete")
	cmd.Flags().StringVar(&contentPath, "content", "", "file holding the resolved content")

	return cmd
}

// printMergeResult renders a merge or continue outcome.
func printMergeResult(out io.Writer, result *git.MergeResult) error {
	if jsonOut {
		return printJSON(out, result)
	}

	switch {
	case result.Merged:
		if result.CommitHash != "" {
			fmt.Fprintf(out, "✅ Merge completed (%s)\n", shortHash(result.CommitHash))
		} else {
			fmt.Fprintln(out, "✅ Merge completed")
		}
	case len(result.Conflicts) > 0:
		fmt.Fprintf(out, "⚠️  Merge halted: %d conflicted file(s)\n\n", len(result.Conflicts))
		for _, c := range result.Conflicts {
			fmt.Fprintf(out, "  %s (%s)\n", c.File, c.Type)
		}
		fmt.Fprintln(out, "\nResolve with: enso merge resolve <file> --use ours|theirs")
		fmt.Fprintln(out, "Then finish with: enso merge continue")
		fmt.Fprintln(out, "Or back out with: enso merge abort")
	case !result.Success:
		fmt.Fprintf(out, "❌ Merge failed: %s\n", result.Error)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
	printStashNotice(out, "main worktree", result.MainWorktreePath, result.MainStashStatus)
	printStashNotice(out, "source worktree", result.WorktreePath, result.WorktreeStashStatus)

	return nil
}

// printStashNotice reports stash entries the user has to deal with by
// hand. Clean restores stay quiet.
func printStashNotice(out io.Writer, label, path string, status git.StashStatus) {
	switch status {
	case git.StashStashed:
		fmt.Fprintf(out, "Uncommitted changes from the %s are stashed; they are restored by 'enso merge continue' (tree: %s)\n", label, path)
	case git.StashConflict:
		fmt.Fprintf(out, "Restoring the %s stash produced conflicts; run 'git stash pop' in %s to retry\n", label, path)
	}
}

// shortHash abbreviates a commit hash for display.
func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
