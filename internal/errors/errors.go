// Package errors provides structured error types for the EnsoAI backend.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes surfaced by the backend.
const (
	// Input errors
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeRepoNotResolved  Code = "REPO_NOT_RESOLVED"
	CodeBranchIntoItself Code = "BRANCH_INTO_ITSELF"

	// Worktree errors
	CodeWorktreeNotFound      Code = "WORKTREE_NOT_FOUND"
	CodeWorktreeExists        Code = "WORKTREE_EXISTS"
	CodeMainWorktreeProtected Code = "MAIN_WORKTREE_PROTECTED"
	CodeBranchNotFound        Code = "BRANCH_NOT_FOUND"

	// Merge errors
	CodeMergeInProgress   Code = "MERGE_IN_PROGRESS"
	CodeNoMergeInProgress Code = "NO_MERGE_IN_PROGRESS"
	CodeStashFailed       Code = "STASH_FAILED"
	CodeGitExecution      Code = "GIT_EXECUTION_FAILED"

	// Config/store errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeStoreFailed   Code = "STORE_FAILED"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryExecution
	CategoryInternal
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeInvalidInput:          CategoryBadRequest,
	CodeRepoNotResolved:       CategoryBadRequest,
	CodeBranchIntoItself:      CategoryBadRequest,
	CodeWorktreeNotFound:      CategoryNotFound,
	CodeWorktreeExists:        CategoryConflict,
	CodeMainWorktreeProtected: CategoryBadRequest,
	CodeBranchNotFound:        CategoryNotFound,
	CodeMergeInProgress:       CategoryConflict,
	CodeNoMergeInProgress:     CategoryBadRequest,
	CodeStashFailed:           CategoryExecution,
	CodeGitExecution:          CategoryExecution,
	CodeConfigInvalid:         CategoryBadRequest,
	CodeStoreFailed:           CategoryInternal,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryExecution:
		return 502
	default:
		return 500
	}
}

// EnsoError is the structured error type for the backend.
type EnsoError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *EnsoError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *EnsoError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *EnsoError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *EnsoError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *EnsoError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *EnsoError) MarshalJSON() ([]byte, error) {
	type alias EnsoError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an EnsoError with the same code.
func (e *EnsoError) Is(target error) bool {
	t, ok := target.(*EnsoError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *EnsoError) WithCause(err error) *EnsoError {
	return &EnsoError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrInvalidInput returns an error for a malformed request field.
func ErrInvalidInput(field, reason string) *EnsoError {
	return &EnsoError{
		Code: CodeInvalidInput,
		What: fmt.Sprintf("invalid %s", field),
		Why:  reason,
		Fix:  "Correct the request and retry",
	}
}

// ErrRepoNotResolved returns an error when no usable repository was given.
func ErrRepoNotResolved(path string) *EnsoError {
	return &EnsoError{
		Code: CodeRepoNotResolved,
		What: "repository could not be resolved",
		Why:  fmt.Sprintf("%q is not a git repository or is not accessible", path),
		Fix:  "Select a valid repository in the app, or pass an absolute path to a git checkout",
	}
}

// ErrBranchIntoItself returns an error when source and target are the same branch.
func ErrBranchIntoItself(branch string) *EnsoError {
	return &EnsoError{
		Code: CodeBranchIntoItself,
		What: fmt.Sprintf("cannot merge branch '%s' into itself", branch),
		Why:  "The target branch is checked out in the source worktree",
		Fix:  "Pick a different target branch, or merge from a different worktree",
	}
}

// ErrWorktreeNotFound returns an error when a worktree path is not registered.
func ErrWorktreeNotFound(path string) *EnsoError {
	return &EnsoError{
		Code: CodeWorktreeNotFound,
		What: fmt.Sprintf("worktree %s not found", path),
		Why:  "The path is not a registered worktree of this repository",
		Fix:  "List worktrees to see registered paths, or prune stale entries",
	}
}

// ErrWorktreeExists returns an error when a worktree path is already in use.
func ErrWorktreeExists(path string) *EnsoError {
	return &EnsoError{
		Code: CodeWorktreeExists,
		What: fmt.Sprintf("worktree path %s already exists", path),
		Why:  "A file, directory, or registered worktree occupies this path",
		Fix:  "Choose a different path or remove the existing worktree first",
	}
}

// ErrMainWorktreeProtected returns an error for destructive operations on the main worktree.
func ErrMainWorktreeProtected(path string) *EnsoError {
	return &EnsoError{
		Code: CodeMainWorktreeProtected,
		What: "the main worktree cannot be removed",
		Why:  fmt.Sprintf("%s is the repository's main worktree", path),
		Fix:  "Only linked worktrees can be removed or deleted after a merge",
	}
}

// ErrBranchNotFound returns an error when a branch does not exist.
func ErrBranchNotFound(branch string) *EnsoError {
	return &EnsoError{
		Code: CodeBranchNotFound,
		What: fmt.Sprintf("branch '%s' not found", branch),
		Why:  "No local branch with this name exists in the repository",
		Fix:  "Check the branch name, or create the branch before merging",
	}
}

// ErrMergeInProgress returns an error when a merge is already underway.
func ErrMergeInProgress(repo string) *EnsoError {
	return &EnsoError{
		Code: CodeMergeInProgress,
		What: "a merge is already in progress",
		Why:  fmt.Sprintf("Repository %s has unresolved merge state on disk", repo),
		Fix:  "Resolve and continue the current merge, or abort it first",
	}
}

// ErrNoMergeInProgress returns an error when continue is called with nothing pending.
func ErrNoMergeInProgress(repo string) *EnsoError {
	return &EnsoError{
		Code: CodeNoMergeInProgress,
		What: "no merge in progress",
		Why:  fmt.Sprintf("Repository %s has no merge, squash, or rebase state to continue", repo),
		Fix:  "Start a merge first; this call only completes one",
	}
}

// ErrStashFailed returns an error when pre-merge stashing failed.
func ErrStashFailed(treePath string) *EnsoError {
	return &EnsoError{
		Code: CodeStashFailed,
		What: "could not stash uncommitted changes",
		Why:  fmt.Sprintf("git stash failed in %s; the merge was not started", treePath),
		Fix:  "Commit, stash, or discard the changes manually, then retry the merge",
	}
}

// ErrGitExecution returns an error for a git command failure unrelated to conflicts.
func ErrGitExecution(op string) *EnsoError {
	return &EnsoError{
		Code: CodeGitExecution,
		What: fmt.Sprintf("git %s failed", op),
		Why:  "The underlying git command exited with an error",
		Fix:  "Inspect the error detail; the repository was left in its current git state",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *EnsoError {
	return &EnsoError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Fix the field in .enso/config.yaml or the matching ENSO_ environment variable",
	}
}

// ErrStoreFailed returns an error for settings/history store failures.
func ErrStoreFailed(op string) *EnsoError {
	return &EnsoError{
		Code: CodeStoreFailed,
		What: fmt.Sprintf("store operation failed: %s", op),
		Why:  "The backing database rejected the operation",
		Fix:  "Check the db settings in config and that the database file is writable",
	}
}

// AsEnsoError attempts to convert an error to an EnsoError.
// Returns nil if the error is not an EnsoError.
func AsEnsoError(err error) *EnsoError {
	var ee *EnsoError
	if stderrors.As(err, &ee) {
		return ee
	}
	return nil
}

// Wrap wraps a generic error into an EnsoError with unknown code.
func Wrap(err error, what string) *EnsoError {
	return &EnsoError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
