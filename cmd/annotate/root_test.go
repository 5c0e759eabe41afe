package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"medthread/internal/models"
	"medthread/internal/pipeline"
	"medthread/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHelpListsSubcommands(t *testing.T) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())

	out := buf.String()
	for _, sub := range []string{"run", "replay", "reset-failed", "import", "submit"} {
		assert.Contains(t, out, sub)
	}
}

func TestReplayRequiresPath(t *testing.T) {
	root := newRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"replay"})
	require.Error(t, root.Execute())
}

func TestFilterFlags(t *testing.T) {
	ff := filterFlags{community: " Mounjaro ", threads: []string{"abc", " ", "def"}, since: "2025-03-01", postsOnly: true}
	f, err := ff.filter()
	require.NoError(t, err)
	assert.Equal(t, "Mounjaro", f.Community)
	assert.Equal(t, []string{"abc", "def"}, f.ThreadIDs)
	require.NotNil(t, f.Since)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *f.Since)
	assert.True(t, f.PostsOnly)

	_, err = filterFlags{since: "last tuesday"}.filter()
	require.Error(t, err)

	ts, err := parseSince("2025-03-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, ts.Hour())
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, exitConfiguration, exitCode(fmt.Errorf("%w: no key", util.ErrConfiguration)))
	assert.Equal(t, exitPersistence, exitCode(&pipeline.PersistenceError{BackupPath: "/b.json", Attempts: 2}))
	assert.Equal(t, exitFailure, exitCode(fmt.Errorf("boom")))
}

func TestWorkflowIDIsStablePerFilter(t *testing.T) {
	a := workflowIDFor(models.Filter{Community: "Ozempic"})
	assert.Equal(t, a, workflowIDFor(models.Filter{Community: "Ozempic"}))
	assert.NotEqual(t, a, workflowIDFor(models.Filter{Community: "Wegovy"}))
	assert.True(t, strings.HasPrefix(a, "annotation-run-"))
}

func TestReadItemsArrayAndLines(t *testing.T) {
	arr := `[
  {"id": "p1", "kind": "post", "title": "Week 4", "body": "down 8 lbs", "community": "Zepbound"},
  {"id": "c1", "parent_id": "t3_p1", "thread_id": "t3_p1", "body": "nice work", "community": "Zepbound"},
  {"id": "", "body": "no id"}
]`
	items, dropped, err := readItems(strings.NewReader(arr))
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, items, 2)
	assert.Equal(t, models.KindComment, items[1].Kind)
	assert.True(t, items[1].ParentIsRoot)
	assert.Equal(t, "p1", items[1].ThreadID)

	lines := "\n{\"id\": \"p2\", \"kind\": \"post\", \"body\": \"hello there\"}\nnot json\n{\"id\": \"c2\", \"thread_id\": \"p2\", \"parent_id\": \"t1_c9\", \"body\": \"reply\"}\n"
	items, dropped, err = readItems(strings.NewReader(lines))
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, items, 2)
	assert.Equal(t, "c9", items[1].ParentID)
	assert.False(t, items[1].ParentIsRoot)

	items, dropped, err = readItems(strings.NewReader("   "))
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, dropped)
}
