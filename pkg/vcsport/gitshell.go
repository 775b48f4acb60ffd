package vcsport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jordan-tan/vizier/pkg/logger"
)

var log = logger.New("vcsport:gitshell")

// GitShell implements Port by shelling out to the `git` binary, the same
// idiom the teacher's pkg/cli/git.go uses for its own repository
// operations: exec.Command with an explicit working directory, trimmed
// stdout, and wrapped errors carrying git's stderr for diagnosis.
type GitShell struct {
	Dir string
}

// NewGitShell returns a GitShell rooted at dir (normally the repo's
// top-level working directory).
func NewGitShell(dir string) *GitShell {
	return &GitShell{Dir: dir}
}

func (g *GitShell) run(ctx context.Context, args ...string) (string, error) {
	log.Printf("git %s", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (g *GitShell) BranchExists(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = g.Dir
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("git show-ref %s: %w", name, err)
	}
	return true, nil
}

func (g *GitShell) PeelBranchToCommit(ctx context.Context, name string) (string, error) {
	return g.run(ctx, "rev-parse", name)
}

func (g *GitShell) EnsureCleanWorktree(ctx context.Context) error {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}
	if out != "" {
		var paths []string
		for _, line := range strings.Split(out, "\n") {
			if strings.TrimSpace(line) != "" {
				paths = append(paths, strings.TrimSpace(line[3:]))
			}
		}
		return &DirtyError{Paths: paths}
	}
	return nil
}

func (g *GitShell) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "merge-base", "--is-ancestor", ancestor, descendant)
	cmd.Dir = g.Dir
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git merge-base --is-ancestor %s %s: %w", ancestor, descendant, err)
}

func (g *GitShell) PrepareMerge(ctx context.Context, branch string) (MergePreparation, error) {
	head, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return MergePreparation{}, err
	}
	source, err := g.run(ctx, "rev-parse", branch)
	if err != nil {
		return MergePreparation{}, err
	}

	cmd := exec.CommandContext(ctx, "git", "merge-tree", "--write-tree", head, source)
	cmd.Dir = g.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if runErr == nil {
		tree := strings.TrimSpace(strings.SplitN(stdout.String(), "\n", 2)[0])
		return MergePreparation{Kind: MergeReady, HeadOID: head, SourceOID: source, TreeOID: tree}, nil
	}

	files, ferr := g.ListConflictedPaths(ctx)
	if ferr != nil {
		return MergePreparation{}, fmt.Errorf("merge-tree %s into HEAD: %w: %s", branch, runErr, stderr.String())
	}
	return MergePreparation{Kind: MergeConflicted, HeadOID: head, SourceOID: source, Files: files}, nil
}

func (g *GitShell) CommitReadyMerge(ctx context.Context, msg string, ready MergePreparation) (string, error) {
	if _, err := g.run(ctx, "read-tree", "-m", ready.HeadOID, ready.TreeOID); err != nil {
		return "", err
	}
	return g.run(ctx, "commit-tree", ready.TreeOID, "-p", ready.HeadOID, "-p", ready.SourceOID, "-m", msg)
}

func (g *GitShell) CommitInProgressMerge(ctx context.Context, msg, head, source string) (string, error) {
	tree, err := g.run(ctx, "write-tree")
	if err != nil {
		return "", err
	}
	oid, err := g.run(ctx, "commit-tree", tree, "-p", head, "-p", source, "-m", msg)
	if err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "update-ref", "HEAD", oid); err != nil {
		return "", err
	}
	return oid, nil
}

func (g *GitShell) BuildSquashPlan(ctx context.Context, branch string) (SquashPlan, error) {
	targetHead, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return SquashPlan{}, err
	}
	sourceTip, err := g.run(ctx, "rev-parse", branch)
	if err != nil {
		return SquashPlan{}, err
	}
	base, err := g.run(ctx, "merge-base", "HEAD", branch)
	if err != nil {
		return SquashPlan{}, err
	}

	commits, err := g.run(ctx, "rev-list", "--reverse", "--topo-order", base+".."+sourceTip)
	if err != nil {
		return SquashPlan{}, err
	}
	var commitList []string
	if commits != "" {
		commitList = strings.Split(commits, "\n")
	}

	var mergeCommits []MergeCommit
	for _, oid := range commitList {
		parents, err := g.run(ctx, "rev-list", "--parents", "-n", "1", oid)
		if err != nil {
			return SquashPlan{}, err
		}
		fields := strings.Fields(parents)
		if len(fields) > 2 {
			mergeCommits = append(mergeCommits, MergeCommit{OID: oid, Parents: fields[1:]})
		}
	}

	plan := SquashPlan{
		TargetHead:     targetHead,
		SourceTip:      sourceTip,
		MergeBase:      base,
		CommitsToApply: commitList,
		MergeCommits:   mergeCommits,
	}
	if len(mergeCommits) == 0 {
		plan.InferredMainline = 1
	} else {
		plan.MainlineAmbiguous = true
	}
	return plan, nil
}

func (g *GitShell) ApplyCherryPickSequence(ctx context.Context, start string, commits []string, favor FileFavor, mainline int) (CherryPickOutcome, error) {
	if _, err := g.run(ctx, "checkout", "--detach", start); err != nil {
		return CherryPickOutcome{}, err
	}
	var applied []string
	for _, oid := range commits {
		args := []string{"cherry-pick", "--no-commit"}
		if mainline > 0 {
			args = append(args, "-m", fmt.Sprintf("%d", mainline))
		}
		args = append(args, oid)
		if _, err := g.run(ctx, args...); err != nil {
			files, ferr := g.ListConflictedPaths(ctx)
			if ferr == nil && len(files) > 0 {
				return CherryPickOutcome{Applied: applied, Conflicted: true, Files: files}, nil
			}
			return CherryPickOutcome{}, err
		}
		if _, err := g.run(ctx, "commit", "--no-edit"); err != nil {
			return CherryPickOutcome{}, err
		}
		applied = append(applied, oid)
	}
	return CherryPickOutcome{Applied: applied}, nil
}

func (g *GitShell) CommitSoftSquash(ctx context.Context, msg, base, expectedHead string) (string, error) {
	head, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if expectedHead != "" && head != expectedHead {
		return "", fmt.Errorf("expected HEAD %s, got %s", expectedHead, head)
	}
	tree, err := g.run(ctx, "write-tree")
	if err != nil {
		return "", err
	}
	oid, err := g.run(ctx, "commit-tree", tree, "-p", base, "-m", msg)
	if err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "update-ref", "HEAD", oid); err != nil {
		return "", err
	}
	return oid, nil
}

func (g *GitShell) CommitInProgressSquash(ctx context.Context, msg, head string) (string, error) {
	return g.CommitSoftSquash(ctx, msg, head, "")
}

func (g *GitShell) CommitInProgressCherryPick(ctx context.Context, msg, expectedParent string) (string, error) {
	tree, err := g.run(ctx, "write-tree")
	if err != nil {
		return "", err
	}
	oid, err := g.run(ctx, "commit-tree", tree, "-p", expectedParent, "-m", msg)
	if err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "update-ref", "HEAD", oid); err != nil {
		return "", err
	}
	return oid, nil
}

func (g *GitShell) ListConflictedPaths(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (g *GitShell) Stage(ctx context.Context, paths []string) error {
	args := append([]string{"add"}, paths...)
	if len(paths) == 0 {
		args = append(args, "-A")
	}
	_, err := g.run(ctx, args...)
	return err
}

func (g *GitShell) StagePathsAllowMissing(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if _, err := os.Stat(g.Dir + "/" + p); os.IsNotExist(err) {
			if _, err := g.run(ctx, "rm", "--cached", "--ignore-unmatch", p); err != nil {
				return err
			}
			continue
		}
		if err := g.Stage(ctx, []string{p}); err != nil {
			return err
		}
	}
	return nil
}

func (g *GitShell) AmendHeadCommit(ctx context.Context, msg string) (string, error) {
	args := []string{"commit", "--amend"}
	if msg != "" {
		args = append(args, "-m", msg)
	} else {
		args = append(args, "--no-edit")
	}
	if _, err := g.run(ctx, args...); err != nil {
		return "", err
	}
	return g.run(ctx, "rev-parse", "HEAD")
}

func (g *GitShell) RepoRoot(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "--show-toplevel")
}

func (g *GitShell) WorktreeAdd(ctx context.Context, path, branch string) error {
	_, err := g.run(ctx, "worktree", "add", path, branch)
	return err
}

func (g *GitShell) WorktreeRemove(ctx context.Context, path string) error {
	_, err := g.run(ctx, "worktree", "remove", "--force", path)
	return err
}

func (g *GitShell) WorktreePrune(ctx context.Context) error {
	_, err := g.run(ctx, "worktree", "prune")
	return err
}
