package backendport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/jordan-tan/vizier/pkg/logger"
)

var log = logger.New("backendport:script")

// ScriptRunner drives a subprocess agent CLI: it writes the Request as JSON
// to the child's stdin and expects a single JSON Response on stdout,
// mirroring the teacher's exec.CommandContext + captured-buffers idiom
// (pkg/cli/git.go) rather than anything backend-specific. This is the
// production Runner for operators who point --backend at an external agent
// executable; Fake remains the one used in tests.
type ScriptRunner struct {
	NameValue string
	Command   string
	Args      []string
}

// NewScriptRunner returns a Runner named name that invokes command with args
// for every request.
func NewScriptRunner(name, command string, args ...string) *ScriptRunner {
	return &ScriptRunner{NameValue: name, Command: command, Args: args}
}

func (s *ScriptRunner) Name() string { return s.NameValue }

func (s *ScriptRunner) Run(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("backend %s: failed to encode request: %w", s.NameValue, err)
	}

	log.Printf("invoking backend %s for capability %q", s.NameValue, req.Capability)
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Response{}, fmt.Errorf("backend %s: %w: %s", s.NameValue, err, stderr.String())
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("backend %s: failed to decode response: %w", s.NameValue, err)
	}
	return resp, nil
}

var _ Runner = (*ScriptRunner)(nil)
