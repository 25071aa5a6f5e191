package git

import (
	"strings"
	"testing"
)

const (
	testAttemptID  = "abc12345"
	testStashLabel = StashLabelPrefix + " " + testAttemptID
	featPath       = "/repos/proj/.worktrees/feat"
)

func newTestCoordinator(t *testing.T, f *fakeRunner) *StashCoordinator {
	t.Helper()
	ctx := newFakeContext(t, f, "/repos/proj")
	return NewStashCoordinator(ctx, StashLabel(testAttemptID), nil)
}

func TestStashLabel(t *testing.T) {
	label := StashLabel(testAttemptID)
	if !strings.HasPrefix(label, StashLabelPrefix) {
		t.Errorf("label %q missing prefix %q", label, StashLabelPrefix)
	}
	if !strings.Contains(label, testAttemptID) {
		t.Errorf("label %q missing attempt id", label)
	}
}

func TestStashIfDirtyClean(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	f.on(featPath, "status --porcelain", "")

	status, err := coord.StashIfDirty(featPath)
	if err != nil {
		t.Fatalf("StashIfDirty() failed: %v", err)
	}
	if status != StashNone {
		t.Errorf("status = %s, want none for a clean tree", status)
	}
	if f.called("stash push") {
		t.Error("clean tree should not be stashed")
	}
}

func TestStashIfDirtyStashes(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	f.on(featPath, "status --porcelain", " M app.go")
	f.on(featPath, "stash push -u -m "+testStashLabel, "Saved working directory")

	status, err := coord.StashIfDirty(featPath)
	if err != nil {
		t.Fatalf("StashIfDirty() failed: %v", err)
	}
	if status != StashStashed {
		t.Errorf("status = %s, want stashed", status)
	}
}

func TestStashIfDirtyInspectFailure(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	// status unscripted: the inspection fails before any stash runs.

	status, err := coord.StashIfDirty(featPath)
	if err == nil {
		t.Fatal("expected an error when the tree cannot be inspected")
	}
	if status != StashNone {
		t.Errorf("status = %s, want none", status)
	}
	if f.called("stash push") {
		t.Error("no stash should run when inspection fails")
	}
}

func TestStashIfDirtyPushFailure(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	f.on(featPath, "status --porcelain", " M app.go")
	// stash push unscripted: the push fails.

	status, err := coord.StashIfDirty(featPath)
	if err == nil {
		t.Fatal("expected an error when the stash push fails")
	}
	if status != StashNone {
		t.Errorf("status = %s, want none", status)
	}
}

func TestPop(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	f.on(featPath, "stash list --format=%gd\t%gs",
		"stash@{0}\tOn feat: "+testStashLabel)
	f.on(featPath, "stash pop stash@{0}", "Dropped stash@{0}")

	status, err := coord.Pop(featPath)
	if err != nil {
		t.Fatalf("Pop() failed: %v", err)
	}
	if status != StashApplied {
		t.Errorf("status = %s, want applied", status)
	}
}

func TestPopMissingEntryTreatedAsApplied(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	f.on(featPath, "stash list --format=%gd\t%gs", "")

	status, err := coord.Pop(featPath)
	if err != nil {
		t.Fatalf("Pop() failed: %v", err)
	}
	if status != StashApplied {
		t.Errorf("status = %s, want applied when the entry is already gone", status)
	}
	if f.called("stash pop") {
		t.Error("no pop should run without an entry")
	}
}

func TestPopIgnoresForeignEntries(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	// Another attempt's entry and a user stash are both skipped.
	f.on(featPath, "stash list --format=%gd\t%gs",
		"stash@{0}\tOn feat: "+StashLabelPrefix+" ffffffff\n"+
			"stash@{1}\tWIP on feat: 1234abc something")

	status, err := coord.Pop(featPath)
	if err != nil {
		t.Fatalf("Pop() failed: %v", err)
	}
	if status != StashApplied {
		t.Errorf("status = %s, want applied", status)
	}
	if f.called("stash pop") {
		t.Error("foreign entries must not be popped")
	}
}

func TestPopConflict(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	f.on(featPath, "stash list --format=%gd\t%gs",
		"stash@{0}\tOn feat: "+testStashLabel)
	f.onError(featPath, "stash pop stash@{0}", "",
		"CONFLICT (content): Merge conflict in app.go")

	status, err := coord.Pop(featPath)
	if err != nil {
		t.Fatalf("a conflicted pop is not an error: %v", err)
	}
	if status != StashConflict {
		t.Errorf("status = %s, want conflict", status)
	}
}

func TestPopFailureKeepsEntry(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	f.on(featPath, "stash list --format=%gd\t%gs",
		"stash@{0}\tOn feat: "+testStashLabel)
	f.onError(featPath, "stash pop stash@{0}", "",
		"fatal: unable to write new index file")

	status, err := coord.Pop(featPath)
	if err == nil {
		t.Fatal("expected an error for a non-conflict pop failure")
	}
	if status != StashStashed {
		t.Errorf("status = %s, want stashed (entry kept)", status)
	}
}

func TestRestoreAny(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	// Two labeled entries from different attempts: the newest one wins.
	f.on(featPath, "stash list --format=%gd\t%gs",
		"stash@{0}\tOn feat: "+StashLabelPrefix+" ffffffff\n"+
			"stash@{1}\tOn feat: "+StashLabelPrefix+" 00000000")
	f.on(featPath, "stash pop stash@{0}", "Dropped stash@{0}")

	status, err := coord.RestoreAny(featPath)
	if err != nil {
		t.Fatalf("RestoreAny() failed: %v", err)
	}
	if status != StashApplied {
		t.Errorf("status = %s, want applied", status)
	}
}

func TestRestoreAnyNothingStashed(t *testing.T) {
	f := newFakeRunner()
	coord := newTestCoordinator(t, f)
	f.on(featPath, "stash list --format=%gd\t%gs",
		"stash@{0}\tWIP on feat: 1234abc user stash")

	status, err := coord.RestoreAny(featPath)
	if err != nil {
		t.Fatalf("RestoreAny() failed: %v", err)
	}
	if status != StashNone {
		t.Errorf("status = %s, want none when no labeled entry exists", status)
	}
	if f.called("stash pop") {
		t.Error("user stashes must not be popped")
	}
}
