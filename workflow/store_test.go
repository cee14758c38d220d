package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)

	plan := &Plan{
		ID:     "p1",
		Goal:   "build the thing",
		Status: PlanActive,
		Tasks: []Task{
			{ID: "a", Title: "First", Status: TaskPending, MaxAttempts: 3},
		},
	}

	require.NoError(t, store.Save(dir, plan))
	assert.False(t, plan.CreatedAt.IsZero(), "save backfills created_at")
	assert.False(t, plan.UpdatedAt.IsZero())

	loaded, err := store.Load(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "p1", loaded.ID)
	assert.Equal(t, "build the thing", loaded.Goal)
	require.Len(t, loaded.Tasks, 1)
	assert.Equal(t, TaskPending, loaded.Tasks[0].Status)
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(nil)

	plan, err := store.Load(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, plan, "missing plan file is not an error")
}

func TestStoreLoadEmptyFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)

	require.NoError(t, os.MkdirAll(filepath.Dir(PlanPath(dir)), 0o755))
	require.NoError(t, os.WriteFile(PlanPath(dir), nil, 0o644))

	plan, err := store.Load(dir)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestStoreLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)

	require.NoError(t, os.MkdirAll(filepath.Dir(PlanPath(dir)), 0o755))
	require.NoError(t, os.WriteFile(PlanPath(dir), []byte("{not json"), 0o644))

	plan, err := store.Load(dir)
	require.NoError(t, err, "corrupt plan is treated as absent, not fatal")
	assert.Nil(t, plan)
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)

	require.NoError(t, store.Save(dir, &Plan{ID: "p1", Goal: "g", Status: PlanActive}))

	entries, err := os.ReadDir(filepath.Dir(PlanPath(dir)))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestStoreArchive(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)

	require.NoError(t, store.Save(dir, &Plan{ID: "p1", Goal: "g", Status: PlanCompleted}))
	require.NoError(t, store.Archive(dir, "completed"))

	// Canonical file is gone, archive holds exactly one entry.
	_, err := os.Stat(PlanPath(dir))
	assert.True(t, os.IsNotExist(err), "archive removes the canonical plan")

	entries, err := os.ReadDir(ArchivePath(dir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasSuffix(name, "_completed.json"), "archive name carries the label: %s", name)
	assert.Regexp(t, `^\d{8}T\d{6}Z_`, name, "archive name starts with a UTC timestamp")
}

func TestStoreArchiveNoPlanIsNoop(t *testing.T) {
	store := NewStore(nil)
	assert.NoError(t, store.Archive(t.TempDir(), "failed"))
}

func TestStoreDeleteIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)

	require.NoError(t, store.Save(dir, &Plan{ID: "p1", Goal: "g", Status: PlanActive}))
	require.NoError(t, store.Delete(dir))
	require.NoError(t, store.Delete(dir), "deleting an absent plan is not an error")

	plan, err := store.Load(dir)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"completed", "completed"},
		{"in progress!", "inprogress"},
		{"../../etc/passwd", "etcpasswd"},
		{"status_with-both", "status_with-both"},
		{"", "unknown"},
		{"日本語", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeLabel(tt.in), tt.in)
	}
}
