package metadata

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DetectProject inspects cwd for known project markers and
// returns a best-effort ProjectContext. Detection never fails the calling
// operation — an unreadable or marker-less directory just yields
// EnvGeneric with the directory basename as the project name.
func DetectProject(cwd string) ProjectContext {
	ctx := ProjectContext{EnvironmentType: EnvGeneric}
	if cwd == "" {
		return ctx
	}
	ctx.RootDirectory = cwd

	switch {
	case fileExists(filepath.Join(cwd, "Cargo.toml")):
		ctx.EnvironmentType = EnvRust
	case fileExists(filepath.Join(cwd, "package.json")):
		ctx.EnvironmentType = EnvNodeJs
	case fileExists(filepath.Join(cwd, "pyproject.toml")), fileExists(filepath.Join(cwd, "requirements.txt")):
		ctx.EnvironmentType = EnvPython
	case fileExists(filepath.Join(cwd, "go.mod")):
		ctx.EnvironmentType = EnvGo
	case fileExists(filepath.Join(cwd, "pom.xml")), fileExists(filepath.Join(cwd, "build.gradle")):
		ctx.EnvironmentType = EnvJava
	case fileExists(filepath.Join(cwd, "CMakeLists.txt")), fileExists(filepath.Join(cwd, "Makefile")):
		ctx.EnvironmentType = EnvCpp
	}

	if fileExists(filepath.Join(cwd, ".git")) {
		ctx.GitInfo = detectGit(cwd)
	}

	ctx.Name = projectName(cwd, ctx.GitInfo)
	return ctx
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// detectGit shells out to git for a best-effort snapshot; any failure
// just leaves the corresponding field empty rather than propagating an
// error — this is only a passthrough snapshot, not a validated source.
func detectGit(cwd string) *GitContext {
	g := &GitContext{}
	if out, err := runGit(cwd, "remote", "get-url", "origin"); err == nil {
		g.RemoteURL = strings.TrimSpace(out)
	}
	if out, err := runGit(cwd, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		g.CurrentBranch = strings.TrimSpace(out)
	}
	if out, err := runGit(cwd, "rev-parse", "HEAD"); err == nil {
		g.CommitHash = strings.TrimSpace(out)
	}
	if out, err := runGit(cwd, "status", "--porcelain"); err == nil {
		g.Dirty = strings.TrimSpace(out) != ""
	}
	if out, err := runGit(cwd, "stash", "list"); err == nil {
		trimmed := strings.TrimSpace(out)
		if trimmed != "" {
			g.Stashes = strings.Split(trimmed, "\n")
		}
	}
	return g
}

func runGit(cwd string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = cwd
	out, err := cmd.Output()
	return string(out), err
}

func projectName(cwd string, git *GitContext) string {
	if git != nil && git.RemoteURL != "" {
		name := git.RemoteURL
		name = strings.TrimSuffix(name, ".git")
		if idx := strings.LastIndexAny(name, "/:"); idx >= 0 {
			name = name[idx+1:]
		}
		if name != "" {
			return name
		}
	}
	return filepath.Base(cwd)
}
