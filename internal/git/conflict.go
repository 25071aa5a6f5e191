package git

import (
	"strconv"
	"strings"
)

// ConflictType determines how the UI presents a conflicted path: content
// conflicts get the three-way text editor, everything else is a binary
// choice between sides (or deletion).
type ConflictType string

const (
	ConflictTypeContent ConflictType = "content"
	ConflictTypeBinary  ConflictType = "binary"
	ConflictTypeRename  ConflictType = "rename"
	ConflictTypeDelete  ConflictType = "delete"
)

// MergeConflict is one unresolved path in a halted merge.
type MergeConflict struct {
	File string       `json:"file"`
	Type ConflictType `json:"type"`
}

// ConflictContent holds the three index stages of a conflicted file.
// A stage absent from the index (e.g. added by only one side) is an
// empty string; the conflict's type tells absent apart from empty.
type ConflictContent struct {
	Ours   string `json:"ours"`
	Theirs string `json:"theirs"`
	Base   string `json:"base"`
}

// Index stage bits as git numbers them: 1 is the common ancestor,
// 2 is ours (target), 3 is theirs (source).
const (
	stageBase   = 1 << 0
	stageOurs   = 1 << 1
	stageTheirs = 1 << 2
)

// ClassifyConflict maps an index stage bitmask to a conflict type.
//
//	mask 7 (base+ours+theirs)  modify/modify -> content
//	mask 6 (ours+theirs)       add/add       -> content
//	mask 3 (base+ours)         deleted by them -> delete
//	mask 5 (base+theirs)       deleted by us   -> delete
//	mask 1, 2, 4 (lone stage)  rename leg      -> rename
//
// binary overrides a content classification when the diff probe reported
// the path as binary.
func ClassifyConflict(mask int, binary bool) ConflictType {
	switch mask {
	case stageBase | stageOurs | stageTheirs, stageOurs | stageTheirs:
		if binary {
			return ConflictTypeBinary
		}
		return ConflictTypeContent
	case stageBase | stageOurs, stageBase | stageTheirs:
		return ConflictTypeDelete
	case stageBase, stageOurs, stageTheirs:
		return ConflictTypeRename
	default:
		return ConflictTypeContent
	}
}

// ParseUnmergedStages parses `git ls-files -u -z` output into a map of
// path to stage bitmask. Entry format: "<mode> <sha> <stage>\t<path>".
func ParseUnmergedStages(output string) map[string]int {
	stages := make(map[string]int)
	for _, entry := range strings.Split(output, "\x00") {
		meta, path, ok := strings.Cut(entry, "\t")
		if !ok || path == "" {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 {
			continue
		}
		stage, err := strconv.Atoi(fields[2])
		if err != nil || stage < 1 || stage > 3 {
			continue
		}
		stages[path] |= 1 << (stage - 1)
	}
	return stages
}

// ParseNumstatBinary parses `git diff --numstat -z` output and reports
// which paths git considers binary ("-" in both count columns).
func ParseNumstatBinary(output string) map[string]bool {
	binary := make(map[string]bool)
	for _, entry := range strings.Split(output, "\x00") {
		fields := strings.SplitN(entry, "\t", 3)
		if len(fields) != 3 || fields[2] == "" {
			continue
		}
		if fields[0] == "-" && fields[1] == "-" {
			binary[fields[2]] = true
		}
	}
	return binary
}

// ConflictedFiles returns the repo-relative paths with unresolved
// conflicts in the current working tree, in git's listing order.
func (g *Context) ConflictedFiles() ([]string, error) {
	output, err := g.runGit("diff", "--name-only", "--diff-filter=U", "-z")
	if err != nil {
		return nil, &GitError{Op: "list conflicted files", Err: err}
	}

	var files []string
	for _, f := range strings.Split(output, "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// Conflicts returns the classified conflict list for the current working
// tree. An empty list means no unresolved paths remain.
func (g *Context) Conflicts() ([]MergeConflict, error) {
	files, err := g.ConflictedFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	unmerged, err := g.runGit("ls-files", "-u", "-z")
	if err != nil {
		return nil, &GitError{Op: "list unmerged stages", Err: err}
	}
	stages := ParseUnmergedStages(unmerged)

	// Binary detection is best-effort; a probe failure degrades to
	// content classification rather than failing the whole listing.
	binaries := map[string]bool{}
	if numstat, err := g.runGit("diff", "--numstat", "--diff-filter=U", "-z"); err == nil {
		binaries = ParseNumstatBinary(numstat)
	}

	conflicts := make([]MergeConflict, 0, len(files))
	for _, file := range files {
		mask, ok := stages[file]
		if !ok {
			mask = stageBase | stageOurs | stageTheirs
		}
		conflicts = append(conflicts, MergeConflict{
			File: file,
			Type: ClassifyConflict(mask, binaries[file]),
		})
	}
	return conflicts, nil
}

// ConflictContent fetches the three-way content of a conflicted file from
// the index. Stages absent from the index come back as empty strings.
func (g *Context) ConflictContent(file string) (*ConflictContent, error) {
	content := &ConflictContent{}
	for _, stage := range []struct {
		n    int
		dest *string
	}{
		{2, &content.Ours},
		{3, &content.Theirs},
		{1, &content.Base},
	} {
		out, err := g.runGit("show", ":"+strconv.Itoa(stage.n)+":"+file)
		if err != nil {
			continue // stage absent for this side
		}
		*stage.dest = out
	}
	return content, nil
}
