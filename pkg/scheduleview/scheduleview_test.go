package scheduleview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/jobstore"
)

func rec(id string, created time.Time, status jobstore.Status) *jobstore.Record {
	return &jobstore.Record{ID: id, Status: status, CreatedAt: created}
}

func TestEntriesOrdersByCreatedAtThenID(t *testing.T) {
	t0 := time.Now()
	a := rec("b", t0, jobstore.StatusQueued)
	b := rec("a", t0, jobstore.StatusQueued)
	c := rec("z", t0.Add(-time.Minute), jobstore.StatusQueued)

	entries := Entries([]*jobstore.Record{a, b, c})
	require.Equal(t, []string{"z", "a", "b"}, []string{entries[0].Record.ID, entries[1].Record.ID, entries[2].Record.ID})
}

func TestSlugForPicksFirstPlanArtifact(t *testing.T) {
	r := rec("j1", time.Now(), jobstore.StatusSucceeded)
	r.Schedule.Artifacts = []artifact.Artifact{artifact.TargetBranch("main"), artifact.PlanBranch("slug-1", "plan/slug-1")}
	require.Equal(t, "slug-1", slugFor(r))
}

func TestFilterHidesSucceededByDefault(t *testing.T) {
	entries := Entries([]*jobstore.Record{
		rec("j1", time.Now(), jobstore.StatusSucceeded),
		rec("j2", time.Now(), jobstore.StatusRunning),
	})
	filtered := Filter(entries, Options{})
	require.Len(t, filtered, 1)
	require.Equal(t, "j2", filtered[0].Record.ID)
}

func TestFilterAllIncludesSucceeded(t *testing.T) {
	entries := Entries([]*jobstore.Record{
		rec("j1", time.Now(), jobstore.StatusSucceeded),
		rec("j2", time.Now(), jobstore.StatusRunning),
	})
	filtered := Filter(entries, Options{All: true})
	require.Len(t, filtered, 2)
}

func TestFilterDismissFailuresHidesFailed(t *testing.T) {
	entries := Entries([]*jobstore.Record{
		rec("j1", time.Now(), jobstore.StatusFailed),
		rec("j2", time.Now(), jobstore.StatusRunning),
	})
	filtered := Filter(entries, Options{DismissFailures: true})
	require.Len(t, filtered, 1)
	require.Equal(t, "j2", filtered[0].Record.ID)
}

func TestFilterJobFocusExpandsOneHopNeighborhood(t *testing.T) {
	root := rec("root", time.Now(), jobstore.StatusSucceeded)
	mid := rec("mid", time.Now(), jobstore.StatusRunning)
	mid.Schedule.After = []artifact.AfterDependency{{JobID: "root", Policy: artifact.AfterSuccess}}
	leaf := rec("leaf", time.Now(), jobstore.StatusQueued)
	leaf.Schedule.After = []artifact.AfterDependency{{JobID: "mid", Policy: artifact.AfterSuccess}}
	unrelated := rec("unrelated", time.Now(), jobstore.StatusQueued)

	entries := Entries([]*jobstore.Record{root, mid, leaf, unrelated})
	filtered := Filter(entries, Options{Job: "mid", MaxDepth: 1})

	ids := map[string]bool{}
	for _, e := range filtered {
		ids[e.Record.ID] = true
	}
	require.True(t, ids["mid"])
	require.True(t, ids["root"])
	require.True(t, ids["leaf"])
	require.False(t, ids["unrelated"])
	require.Equal(t, "mid", filtered[0].Record.ID, "focused job pins the first row")
}

func TestFilterJobFocusUnknownJobReturnsEmpty(t *testing.T) {
	entries := Entries([]*jobstore.Record{rec("j1", time.Now(), jobstore.StatusQueued)})
	filtered := Filter(entries, Options{Job: "nope"})
	require.Empty(t, filtered)
}

func TestBuildScheduleJSON(t *testing.T) {
	r := rec("j1", time.Now(), jobstore.StatusRunning)
	r.Schedule.Dependencies = []jobstore.Dependency{{Artifact: artifact.TargetBranch("main")}}
	entries := Entries([]*jobstore.Record{r})

	doc := Build(entries, map[string]bool{})
	require.Equal(t, 1, doc.Version)
	require.Equal(t, "created_at_then_job_id", doc.Ordering)
	require.Len(t, doc.Jobs, 1)
	require.Len(t, doc.Edges, 1)
	require.Equal(t, "missing", doc.Edges[0].State)
}

func TestBuildScheduleJSONMarksPresentDependency(t *testing.T) {
	r := rec("j1", time.Now(), jobstore.StatusRunning)
	dep := artifact.TargetBranch("main")
	r.Schedule.Dependencies = []jobstore.Dependency{{Artifact: dep}}
	entries := Entries([]*jobstore.Record{r})

	doc := Build(entries, map[string]bool{dep.Canonical(): true})
	require.Equal(t, "present", doc.Edges[0].State)
}

func TestPublishedCollectsOnlySucceeded(t *testing.T) {
	succeeded := rec("j1", time.Now(), jobstore.StatusSucceeded)
	succeeded.Schedule.Artifacts = []artifact.Artifact{artifact.TargetBranch("main")}
	failed := rec("j2", time.Now(), jobstore.StatusFailed)
	failed.Schedule.Artifacts = []artifact.Artifact{artifact.TargetBranch("other")}

	published := Published([]*jobstore.Record{succeeded, failed})
	require.True(t, published[artifact.TargetBranch("main").Canonical()])
	require.False(t, published[artifact.TargetBranch("other").Canonical()])
}

func TestRenderSummaryIncludesJobAndStatus(t *testing.T) {
	entries := Entries([]*jobstore.Record{rec("j1", time.Now(), jobstore.StatusRunning)})
	out := RenderSummary(entries)
	require.Contains(t, out, "j1")
	require.Contains(t, out, "running")
}

func TestRenderListRespectsFieldOrder(t *testing.T) {
	entries := Entries([]*jobstore.Record{rec("j1", time.Now(), jobstore.StatusRunning)})
	out := RenderList(entries, []ListField{FieldStatus, FieldID})
	require.Contains(t, out, "STATUS")
	require.Contains(t, out, "JOB")
}

func TestBuildDetailProjectsCoreFields(t *testing.T) {
	r := rec("j1", time.Now(), jobstore.StatusRunning)
	r.Metadata.CommandAlias = "save"
	r.Schedule.WaitedOn = []string{"locks"}

	d := BuildDetail(r, "slug-1")
	require.Equal(t, "j1", d.ID)
	require.Equal(t, "save", d.CommandAlias)
	require.Equal(t, "slug-1", d.Slug)
	require.Equal(t, []string{"locks"}, d.WaitedOn)
}

func TestRenderDetailJSONRoundTrips(t *testing.T) {
	d := BuildDetail(rec("j1", time.Now(), jobstore.StatusRunning), "")
	out, err := RenderDetailJSON(d)
	require.NoError(t, err)
	require.Contains(t, out, `"id": "j1"`)
}
