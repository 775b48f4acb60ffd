// Package constants holds the small set of fixed names and paths the rest of
// Vizier agrees on: on-disk layout under .vizier/, canonical job statuses,
// and the CLI's own extension prefix.
package constants

// CLIPrefix is the prefix used in user-facing output and remediation text to
// refer to the CLI (e.g. "rerun `vizier merge <slug> --complete-conflict`").
const CLIPrefix = "vizier"

// VizierDir is the root of Vizier's on-disk state within a repository.
const VizierDir = ".vizier"

// JobsDirName is the subdirectory of VizierDir holding job records.
const JobsDirName = "jobs"

// SessionsDirName is the subdirectory of VizierDir holding backend sessions.
const SessionsDirName = "sessions"

// TmpDirName is the subdirectory of VizierDir holding transient state such as
// merge-conflict replay records and temporary worktrees.
const TmpDirName = "tmp"

// MergeConflictsDirName is the subdirectory of TmpDirName holding persisted
// merge-conflict resolution state, keyed by plan slug.
const MergeConflictsDirName = "merge-conflicts"

// WorktreesDirName is the subdirectory of TmpDirName holding job-owned
// physical worktrees.
const WorktreesDirName = "tmp-worktrees"

// PlansDirName is the subdirectory (inside plan branches only) holding
// implementation plan documents.
const PlansDirName = "implementation-plans"

// ConfigFileName is the default repo-level configuration file name.
const ConfigFileName = "config.toml"

// SnapshotFileName is the narrative snapshot file written at the repo root
// of VizierDir.
const SnapshotFileName = ".snapshot"

// JobRecordFileName is the name of the per-job JSON record file.
const JobRecordFileName = "job.json"

// StdoutLogName and StderrLogName are the per-job captured stream files.
const (
	StdoutLogName = "stdout.log"
	StderrLogName = "stderr.log"
)

// OutcomeFileName is the optional per-job outcome record written on
// approve/reject/terminal transitions.
const OutcomeFileName = "outcome.json"

// SessionFileName is the per-job backend session record: the capability
// label, the response content, and the usage it reported.
const SessionFileName = "session.json"

// ScheduleJSONVersion is the version tag embedded in `jobs schedule --format json` output.
const ScheduleJSONVersion = 1

// ScheduleOrdering names the deterministic ordering used by schedule views.
const ScheduleOrdering = "created_at_then_job_id"

// DefaultGCThresholdDays is the default terminal-age threshold for `jobs gc`.
const DefaultGCThresholdDays = 7

// EnvConfigFile and EnvConfigDir name the environment variables consulted
// during config resolution, in precedence order after --config-file.
const (
	EnvConfigFile = "VIZIER_CONFIG_FILE"
	EnvConfigDir  = "VIZIER_CONFIG_DIR"
	EnvXDGConfig  = "XDG_CONFIG_HOME"
)
