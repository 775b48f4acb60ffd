package runtime

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/jordan-tan/vizier/pkg/template"
)

// execCustomCommand runs an arbitrary command with argv = args["argv"]
// under the job's worktree (spec §4.4 step 3: ExecCustomCommand). Non-zero
// exit is a failed outcome.
func execCustomCommand(ctx context.Context, rt *Runtime, jobID string, node *template.CompiledWorkflowNode, args NodeArgs) ExecutionResult {
	argv := strings.Fields(node.Args["argv"])
	if len(argv) == 0 {
		return ExecutionResult{Outcome: OutcomeFailed, Err: errNoArgv}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = args.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Printf("job %s: exec_custom_command %q failed: %v", jobID, node.Args["argv"], err)
		return ExecutionResult{Outcome: OutcomeFailed, Err: err}
	}
	return ExecutionResult{Outcome: OutcomeSucceeded}
}

var errNoArgv = errArgv{}

type errArgv struct{}

func (errArgv) Error() string { return "exec_custom_command: args[\"argv\"] is empty" }
