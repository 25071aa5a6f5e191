package config

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// ImportLegacySettings seeds cfg from the desktop shell's settings.json.
// Only the keys the backend owns are read; the rest of the file belongs
// to the renderer and is ignored. Returns the config paths that were set.
func ImportLegacySettings(path string, cfg *Config) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legacy settings: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse legacy settings %s: not valid json", path)
	}
	root := gjson.ParseBytes(data)

	var applied []string
	apply := func(jsonPath, configPath string, set func(gjson.Result)) {
		if v := root.Get(jsonPath); v.Exists() {
			set(v)
			applied = append(applied, configPath)
		}
	}

	apply("git.binaryPath", "git.binary", func(v gjson.Result) {
		cfg.Git.Binary = v.String()
	})
	apply("network.proxy.http", "git.proxy.http", func(v gjson.Result) {
		cfg.Git.Proxy.HTTP = v.String()
	})
	apply("network.proxy.https", "git.proxy.https", func(v gjson.Result) {
		cfg.Git.Proxy.HTTPS = v.String()
	})
	apply("network.proxy.bypass", "git.proxy.no_proxy", func(v gjson.Result) {
		cfg.Git.Proxy.NoProxy = v.String()
	})
	apply("merge.defaultStrategy", "merge.default_strategy", func(v gjson.Result) {
		cfg.Merge.DefaultStrategy = v.String()
	})
	apply("merge.autoStash", "merge.auto_stash", func(v gjson.Result) {
		cfg.Merge.AutoStash = v.Bool()
	})
	apply("merge.noFastForward", "merge.no_ff", func(v gjson.Result) {
		cfg.Merge.NoFF = v.Bool()
	})
	apply("merge.protectedBranches", "merge.keep_branches", func(v gjson.Result) {
		arr := v.Array()
		globs := make([]string, 0, len(arr))
		for _, e := range arr {
			globs = append(globs, e.String())
		}
		cfg.Merge.KeepBranches = globs
	})
	apply("worktrees.directory", "worktree.root", func(v gjson.Result) {
		cfg.Worktree.Root = v.String()
	})
	apply("server.port", "server.port", func(v gjson.Result) {
		cfg.Server.Port = int(v.Int())
	})

	return applied, nil
}
