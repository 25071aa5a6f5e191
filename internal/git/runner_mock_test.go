package git

import (
	"fmt"
	"strings"
	"sync"
)

// fakeRunner replays canned responses keyed by working directory and
// command line, and records every invocation in order. Commands without a
// scripted response fail, so tests state exactly which git calls they
// expect to succeed.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	queued    map[string][]fakeResponse
	prefixes  []fakePrefix
	calls     []string
}

type fakeResponse struct {
	stdout string
	err    error
}

type fakePrefix struct {
	prefix string
	resp   fakeResponse
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[string]fakeResponse),
		queued:    make(map[string][]fakeResponse),
	}
}

func fakeKey(workDir, cmd string) string {
	return workDir + " git " + cmd
}

// on scripts a successful response for cmd run in workDir.
func (f *fakeRunner) on(workDir, cmd, stdout string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[fakeKey(workDir, cmd)] = fakeResponse{stdout: stdout}
}

// onError scripts a failure for cmd run in workDir. The message becomes
// the CommandError output, stdout is what the command printed before
// failing.
func (f *fakeRunner) onError(workDir, cmd, stdout, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[fakeKey(workDir, cmd)] = fakeResponse{
		stdout: stdout,
		err: &CommandError{
			Command: "git",
			Args:    strings.Fields(cmd),
			WorkDir: workDir,
			Output:  message,
			Err:     fmt.Errorf("exit status 1"),
		},
	}
}

// onceOn scripts a one-shot successful response consumed before any
// on-scripted response for the same key. Used when a command's answer
// changes over the course of a scenario.
func (f *fakeRunner) onceOn(workDir, cmd, stdout string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeKey(workDir, cmd)
	f.queued[key] = append(f.queued[key], fakeResponse{stdout: stdout})
}

// onceError is onceOn's failing counterpart.
func (f *fakeRunner) onceError(workDir, cmd, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeKey(workDir, cmd)
	f.queued[key] = append(f.queued[key], fakeResponse{
		err: &CommandError{
			Command: "git",
			Args:    strings.Fields(cmd),
			WorkDir: workDir,
			Output:  message,
			Err:     fmt.Errorf("exit status 1"),
		},
	})
}

// onPrefix scripts a successful response for any command line starting
// with cmdPrefix. Used for commands carrying unpredictable arguments,
// like per-attempt stash labels.
func (f *fakeRunner) onPrefix(workDir, cmdPrefix, stdout string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, fakePrefix{
		prefix: fakeKey(workDir, cmdPrefix),
		resp:   fakeResponse{stdout: stdout},
	})
}

func (f *fakeRunner) Run(workDir, name string, args ...string) (string, error) {
	key := fakeKey(workDir, strings.Join(args, " "))
	f.mu.Lock()
	f.calls = append(f.calls, key)

	resp, ok := f.responses[key]
	if q := f.queued[key]; len(q) > 0 {
		resp, ok = q[0], true
		f.queued[key] = q[1:]
	} else if !ok {
		for _, p := range f.prefixes {
			if strings.HasPrefix(key, p.prefix) {
				resp, ok = p.resp, true
				break
			}
		}
	}
	f.mu.Unlock()

	if !ok {
		return "", &CommandError{
			Command: name,
			Args:    args,
			WorkDir: workDir,
			Output:  "unscripted command: " + key,
			Err:     fmt.Errorf("exit status 1"),
		}
	}
	return resp.stdout, resp.err
}

// callIndex returns the position of the first recorded call containing
// substr, or -1.
func (f *fakeRunner) callIndex(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, call := range f.calls {
		if strings.Contains(call, substr) {
			return i
		}
	}
	return -1
}

func (f *fakeRunner) called(substr string) bool {
	return f.callIndex(substr) >= 0
}

func (f *fakeRunner) callCount(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.Contains(call, substr) {
			n++
		}
	}
	return n
}

// scriptIdleTree scripts the calls that make a working tree look idle to
// merge-state derivation: a git dir that does not exist on the test
// filesystem and an empty conflict listing. MERGE_HEAD probes stay
// unscripted and therefore fail, which reads as "no merge".
func (f *fakeRunner) scriptIdleTree(treePath string) {
	f.on(treePath, "rev-parse --git-dir", treePath+"/.git-nonexistent")
	f.on(treePath, "diff --name-only --diff-filter=U -z", "")
}

// newFakeContext builds a Context over the fake runner rooted at repoPath.
func newFakeContext(t interface{ Fatalf(string, ...any) }, f *fakeRunner, repoPath string) *Context {
	f.on(repoPath, "rev-parse --show-toplevel", repoPath)
	ctx, err := NewContext(repoPath, WithRunner(f))
	if err != nil {
		t.Fatalf("NewContext() failed: %v", err)
	}
	return ctx
}
