package git

import (
	"testing"
)

func TestClassifyConflict(t *testing.T) {
	tests := []struct {
		name   string
		mask   int
		binary bool
		want   ConflictType
	}{
		{"modify/modify", stageBase | stageOurs | stageTheirs, false, ConflictTypeContent},
		{"add/add", stageOurs | stageTheirs, false, ConflictTypeContent},
		{"modify/modify binary", stageBase | stageOurs | stageTheirs, true, ConflictTypeBinary},
		{"add/add binary", stageOurs | stageTheirs, true, ConflictTypeBinary},
		{"deleted by them", stageBase | stageOurs, false, ConflictTypeDelete},
		{"deleted by us", stageBase | stageTheirs, false, ConflictTypeDelete},
		{"lone base stage", stageBase, false, ConflictTypeRename},
		{"lone ours stage", stageOurs, false, ConflictTypeRename},
		{"lone theirs stage", stageTheirs, false, ConflictTypeRename},
		{"empty mask falls back to content", 0, false, ConflictTypeContent},
		{"binary flag ignored outside content", stageBase | stageOurs, true, ConflictTypeDelete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyConflict(tt.mask, tt.binary); got != tt.want {
				t.Errorf("ClassifyConflict(%d, %v) = %s, want %s", tt.mask, tt.binary, got, tt.want)
			}
		})
	}
}

func TestParseUnmergedStages(t *testing.T) {
	output := "100644 1111111111111111111111111111111111111111 1\tapp.go\x00" +
		"100644 2222222222222222222222222222222222222222 2\tapp.go\x00" +
		"100644 3333333333333333333333333333333333333333 3\tapp.go\x00" +
		"100644 4444444444444444444444444444444444444444 2\tonly-ours.txt\x00"

	stages := ParseUnmergedStages(output)

	if len(stages) != 2 {
		t.Fatalf("parsed %d paths, want 2", len(stages))
	}
	if stages["app.go"] != stageBase|stageOurs|stageTheirs {
		t.Errorf("app.go mask = %d, want 7", stages["app.go"])
	}
	if stages["only-ours.txt"] != stageOurs {
		t.Errorf("only-ours.txt mask = %d, want %d", stages["only-ours.txt"], stageOurs)
	}
}

func TestParseUnmergedStagesMalformed(t *testing.T) {
	// Entries missing the tab, with bad field counts, or with out-of-range
	// stage numbers are skipped rather than failing the parse.
	output := "garbage\x00" +
		"100644 aaa\tno-stage.txt\x00" +
		"100644 bbb 9\tbad-stage.txt\x00" +
		"100644 ccc 3\tok.txt\x00" +
		"\x00"

	stages := ParseUnmergedStages(output)

	if len(stages) != 1 {
		t.Fatalf("parsed %d paths, want 1", len(stages))
	}
	if stages["ok.txt"] != stageTheirs {
		t.Errorf("ok.txt mask = %d, want %d", stages["ok.txt"], stageTheirs)
	}
}

func TestParseUnmergedStagesEmpty(t *testing.T) {
	if got := ParseUnmergedStages(""); len(got) != 0 {
		t.Errorf("parsed %d paths from empty output, want 0", len(got))
	}
}

func TestParseNumstatBinary(t *testing.T) {
	output := "3\t1\tapp.go\x00-\t-\timg.png\x00-\t5\thalf.txt\x00"

	binary := ParseNumstatBinary(output)

	if binary["app.go"] {
		t.Error("app.go should not be binary")
	}
	if !binary["img.png"] {
		t.Error("img.png should be binary")
	}
	if binary["half.txt"] {
		t.Error("a single dash column should not mark a path binary")
	}
}

func TestConflictedFiles(t *testing.T) {
	f := newFakeRunner()
	ctx := newFakeContext(t, f, "/repos/proj")
	f.on("/repos/proj", "diff --name-only --diff-filter=U -z", "app.go\x00img.png\x00")

	files, err := ctx.ConflictedFiles()
	if err != nil {
		t.Fatalf("ConflictedFiles() failed: %v", err)
	}
	if len(files) != 2 || files[0] != "app.go" || files[1] != "img.png" {
		t.Errorf("files = %v, want [app.go img.png]", files)
	}
}

func TestConflictedFilesNone(t *testing.T) {
	f := newFakeRunner()
	ctx := newFakeContext(t, f, "/repos/proj")
	f.on("/repos/proj", "diff --name-only --diff-filter=U -z", "")

	files, err := ctx.ConflictedFiles()
	if err != nil {
		t.Fatalf("ConflictedFiles() failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %v, want none", files)
	}
}

func TestConflicts(t *testing.T) {
	f := newFakeRunner()
	ctx := newFakeContext(t, f, "/repos/proj")

	f.on("/repos/proj", "diff --name-only --diff-filter=U -z",
		"app.go\x00img.png\x00gone.txt\x00moved.txt\x00phantom.txt\x00")
	f.on("/repos/proj", "ls-files -u -z",
		"100644 aaa 1\tapp.go\x00100644 bbb 2\tapp.go\x00100644 ccc 3\tapp.go\x00"+
			"100644 ddd 2\timg.png\x00100644 eee 3\timg.png\x00"+
			"100644 fff 1\tgone.txt\x00100644 ggg 2\tgone.txt\x00"+
			"100644 hhh 3\tmoved.txt\x00")
	f.on("/repos/proj", "diff --numstat --diff-filter=U -z",
		"3\t1\tapp.go\x00-\t-\timg.png\x00")

	conflicts, err := ctx.Conflicts()
	if err != nil {
		t.Fatalf("Conflicts() failed: %v", err)
	}

	want := map[string]ConflictType{
		"app.go":    ConflictTypeContent,
		"img.png":   ConflictTypeBinary,
		"gone.txt":  ConflictTypeDelete,
		"moved.txt": ConflictTypeRename,
		// Listed as conflicted but missing from ls-files: defaults to content.
		"phantom.txt": ConflictTypeContent,
	}
	if len(conflicts) != len(want) {
		t.Fatalf("got %d conflicts, want %d", len(conflicts), len(want))
	}
	for _, c := range conflicts {
		if want[c.File] != c.Type {
			t.Errorf("%s classified %s, want %s", c.File, c.Type, want[c.File])
		}
	}
}

func TestConflictsEmpty(t *testing.T) {
	f := newFakeRunner()
	ctx := newFakeContext(t, f, "/repos/proj")
	f.on("/repos/proj", "diff --name-only --diff-filter=U -z", "")

	conflicts, err := ctx.Conflicts()
	if err != nil {
		t.Fatalf("Conflicts() failed: %v", err)
	}
	if conflicts != nil {
		t.Errorf("conflicts = %v, want nil", conflicts)
	}
	// With no conflicted paths, the stage and numstat probes never run.
	if f.called("ls-files") {
		t.Error("ls-files should not run when nothing is conflicted")
	}
}

func TestConflictsNumstatFailureDegrades(t *testing.T) {
	f := newFakeRunner()
	ctx := newFakeContext(t, f, "/repos/proj")

	f.on("/repos/proj", "diff --name-only --diff-filter=U -z", "img.png\x00")
	f.on("/repos/proj", "ls-files -u -z", "100644 aaa 2\timg.png\x00100644 bbb 3\timg.png\x00")
	// numstat left unscripted: the probe fails and binary detection is skipped.

	conflicts, err := ctx.Conflicts()
	if err != nil {
		t.Fatalf("Conflicts() failed: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	if conflicts[0].Type != ConflictTypeContent {
		t.Errorf("type = %s, want content when the binary probe fails", conflicts[0].Type)
	}
}

func TestConflictContent(t *testing.T) {
	f := newFakeRunner()
	ctx := newFakeContext(t, f, "/repos/proj")
	f.on("/repos/proj", "show :2:app.go", "ours version")
	f.on("/repos/proj", "show :3:app.go", "theirs version")
	f.on("/repos/proj", "show :1:app.go", "base version")

	content, err := ctx.ConflictContent("app.go")
	if err != nil {
		t.Fatalf("ConflictContent() failed: %v", err)
	}
	if content.Ours != "ours version" {
		t.Errorf("ours = %q", content.Ours)
	}
	if content.Theirs != "theirs version" {
		t.Errorf("theirs = %q", content.Theirs)
	}
	if content.Base != "base version" {
		t.Errorf("base = %q", content.Base)
	}
}

func TestConflictContentAbsentStage(t *testing.T) {
	f := newFakeRunner()
	ctx := newFakeContext(t, f, "/repos/proj")
	// add/add conflict: no base stage in the index, so :1: fails.
	f.on("/repos/proj", "show :2:new.go", "ours")
	f.on("/repos/proj", "show :3:new.go", "theirs")

	content, err := ctx.ConflictContent("new.go")
	if err != nil {
		t.Fatalf("ConflictContent() failed: %v", err)
	}
	if content.Base != "" {
		t.Errorf("base = %q, want empty for an absent stage", content.Base)
	}
	if content.Ours != "ours" || content.Theirs != "theirs" {
		t.Errorf("ours/theirs = %q/%q", content.Ours, content.Theirs)
	}
}
