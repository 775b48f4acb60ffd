// Package cliapp holds the non-cobra logic behind cmd/vizier's command
// files: resolving configuration into a live VCS/backend/orchestrator
// wiring, and building the one-off workflow templates each operator intent
// compiles into job records. cmd/vizier itself stays a thin shell over this
// package, the way gh-aw's cmd/gh-aw/main.go stays thin over pkg/cli.
package cliapp

import (
	"fmt"
	"os"

	"github.com/jordan-tan/vizier/internal/config"
	"github.com/jordan-tan/vizier/internal/orchestrator"
	"github.com/jordan-tan/vizier/pkg/backendport"
	"github.com/jordan-tan/vizier/pkg/logger"
	"github.com/jordan-tan/vizier/pkg/scheduler"
	"github.com/jordan-tan/vizier/pkg/vcsport"
)

var log = logger.New("cliapp:deps")

// GlobalFlags mirrors spec.md §6.4's persistent CLI flags, bound by
// cmd/vizier's root command and threaded through to every subcommand.
type GlobalFlags struct {
	JSON       bool
	Quiet      bool
	ConfigFile string
	NoCommit   bool
	Backend    string
	Push       bool
}

// Deps is the live wiring one invocation of any vizier subcommand needs:
// resolved configuration, a VCS port rooted at the repository, a backend
// runner, and the orchestrator/scheduler built on top of them.
type Deps struct {
	Config       *config.Config
	RepoRoot     string
	VCS          vcsport.Port
	Backend      backendport.Runner
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler
}

// Resolve loads configuration for repoRoot, overlays global flags, and
// constructs the VCS port, backend runner, and orchestrator every command
// needs. Backend resolution never falls back to backendport.Fake: an
// unconfigured backend is a hard, actionable error (spec §6.2 names only a
// BackendRunner interface; the CLI is responsible for choosing a real one).
func Resolve(repoRoot string, flags GlobalFlags) (*Deps, error) {
	loader := config.NewLoader(repoRoot)
	if flags.ConfigFile != "" {
		loader = loader.WithConfigFile(flags.ConfigFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("cliapp: loading config: %w", err)
	}

	if flags.Backend != "" {
		cfg.Backend = flags.Backend
	}
	if flags.NoCommit {
		cfg.NoCommit = true
	}
	if flags.Push {
		cfg.Push = true
	}
	if flags.JSON {
		cfg.JSON = true
	}
	if flags.Quiet {
		cfg.Quiet = true
	}

	if cfg.Backend == "" {
		return nil, fmt.Errorf("cliapp: no agent backend configured; pass --backend <name>, set VIZIER_BACKEND, or add `backend = \"<name>\"` to .vizier/config.toml")
	}

	vcs := vcsport.NewGitShell(repoRoot)
	backend := backendport.NewScriptRunner(cfg.Backend, cfg.Backend)

	orch := orchestrator.New(repoRoot, vcs, backend)

	log.Printf("resolved deps: repo=%s backend=%s", repoRoot, cfg.Backend)
	return &Deps{
		Config:       cfg,
		RepoRoot:     repoRoot,
		VCS:          vcs,
		Backend:      backend,
		Orchestrator: orch,
		Scheduler:    orch.Scheduler,
	}, nil
}

// RepoRootFromCwd returns the current working directory as the repository
// root. Vizier assumes it is invoked from within the repository's top-level
// working directory, mirroring the teacher's own commands which operate
// relative to cwd rather than discovering a root by walking up for a
// `.git` directory.
func RepoRootFromCwd() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cliapp: resolving working directory: %w", err)
	}
	return dir, nil
}
