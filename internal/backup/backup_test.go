package backup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"medthread/internal/models"
	"medthread/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2025, 4, 2, 13, 5, 9, 0, time.UTC)

func TestFileName(t *testing.T) {
	assert.Equal(t, "annotation_backup_20250402_130509.json", FileName("", ts))
	assert.Equal(t, "annotation_backup_Ozempic_20250402_130509.json", FileName("Ozempic", ts))
	assert.Equal(t, "annotation_backup_loseit_20250402_130509.json", FileName("r/loseit", ts))
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	f := File{
		Metadata: MetadataFromStats(models.RunStats{RunID: "run-1", Processed: 1, TotalCostUSD: 0.01}, models.Filter{Community: "Mounjaro"}, 50, "annotate_v3_x", ts),
		Results: []models.ExtractionResult{{
			SourceItemID: "c1",
			Status:       models.StatusProcessed,
			Features:     models.NewFeatures(),
		}},
	}
	path, size, err := w.Write(f)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "annotation_backup_Mounjaro_20250402_130509.json"), path)
	require.Greater(t, size, int64(0))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"drugs_mentioned": []`)
	require.Contains(t, string(raw), `"field_issues": []`)

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, "run-1", got.Metadata.RunID)
	require.Equal(t, 1, got.Metadata.Counts.Processed)
	require.Len(t, got.Results, 1)
	require.NotNil(t, got.Results[0].Features.DrugsMentioned)
}

func TestWriteDoesNotOverwriteSameSecond(t *testing.T) {
	w := NewWriter(t.TempDir())
	a, _, err := w.Write(File{Metadata: Metadata{RunID: "aaaaaaaa-1", Timestamp: ts}})
	require.NoError(t, err)
	b, _, err := w.Write(File{Metadata: Metadata{RunID: "bbbbbbbb-2", Timestamp: ts}})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.True(t, strings.HasSuffix(b, "_bbbbbbbb.json"))
}

func TestWriteFallsBackWhenDirUnwritable(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := NewWriter(filepath.Join(blocker, "backups"))
	w.Fallback = filepath.Join(base, "fallback")
	path, _, err := w.Write(File{Metadata: Metadata{RunID: "r", Timestamp: ts}})
	require.NoError(t, err)
	require.Equal(t, w.Fallback, filepath.Dir(path))
}

func TestWriteFailsWhenNoDirWritable(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := NewWriter(filepath.Join(blocker, "a"))
	w.Fallback = filepath.Join(blocker, "b")
	_, _, err := w.Write(File{Metadata: Metadata{RunID: "r", Timestamp: ts}})
	require.Error(t, err)
	require.True(t, errors.Is(err, util.ErrBackup))
}
