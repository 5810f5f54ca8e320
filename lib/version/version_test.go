// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	defer func(commit, dirty, built string) { GitCommit, GitDirty, BuildTime = commit, dirty, built }(GitCommit, GitDirty, BuildTime)
	GitCommit, GitDirty, BuildTime = "abc1234", "true", "2026-02-10T00:00:00Z"

	if got, want := Info(), "0.1.0-dev (abc1234-dirty, 2026-02-10T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	if !strings.HasPrefix(Full(), Info()+"\n  Go: ") {
		t.Errorf("Full() = %q", Full())
	}
	if Short() != Version {
		t.Errorf("Short() = %q", Short())
	}
}

func TestCommitFallsBackToBuildInfo(t *testing.T) {
	defer func(commit string, read func() (*debug.BuildInfo, bool)) {
		GitCommit, readBuildInfo = commit, read
	}(GitCommit, readBuildInfo)
	GitCommit = "unknown"

	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef0123"}}}, true
	}
	if got := Commit(); got != "0123456789ab" {
		t.Errorf("Commit() = %q, want the shortened VCS revision", got)
	}

	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
	if got := Commit(); got != "unknown" {
		t.Errorf("Commit() without build info = %q, want unknown", got)
	}
}
