package picar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRun(t *testing.T, sessions string, rep *Report, sheet bool) string {
	t.Helper()
	dir := filepath.Join(sessions, rep.Started.Format(SessionDirLayout))
	_, err := WriteReport(dir, rep)
	require.NoError(t, err)
	if sheet {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ContactSheetFile), []byte("png"), 0644))
	}
	return filepath.Base(dir)
}

func TestScanSessions_NewestFirst(t *testing.T) {
	sessions := t.TempDir()
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	older := writeRun(t, sessions, &Report{StopReason: ReasonQuit, Started: first, Samples: 3}, true)
	newer := writeRun(t, sessions, &Report{StopReason: ReasonStreamEnded, Started: first.Add(time.Hour)}, false)

	// Not a session directory, and a session directory with no report.
	require.NoError(t, os.MkdirAll(filepath.Join(sessions, "scratch"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(sessions, "20240501-120000"), 0755))

	entries, err := ScanSessions(sessions)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, newer, entries[0].Name)
	assert.Empty(t, entries[0].ContactSheet)
	assert.Equal(t, older, entries[1].Name)
	assert.Equal(t, older+"/"+ContactSheetFile, entries[1].ContactSheet)
	assert.Equal(t, older+"/"+ReportFile, entries[1].ReportPath)
	assert.Equal(t, int64(3), entries[1].Report.Samples)
}

func TestScanSessions_MissingDir(t *testing.T) {
	_, err := ScanSessions(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)
}

// TestWriteSessionIndex_EscapesFaults keeps fault text from breaking the page
func TestWriteSessionIndex_EscapesFaults(t *testing.T) {
	sessions := t.TempDir()
	writeRun(t, sessions, &Report{
		StopReason: ReasonFault,
		Started:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Fault:      `camera <video0> said "no" & quit`,
	}, true)

	path, err := WriteSessionIndex(sessions)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sessions, IndexFile), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	page := string(raw)

	assert.Contains(t, page, "1 sessions")
	assert.Contains(t, page, `camera &lt;video0&gt; said &#34;no&#34; &amp; quit`)
	assert.NotContains(t, page, "<video0>")
	assert.NotContains(t, page, "&amp;lt;", "double escaping")
	assert.Contains(t, page, `src="20240501-100000/`+ContactSheetFile+`"`)
}

func TestNewSessionDir_SameSecondRunsGetTheirOwnDir(t *testing.T) {
	data := t.TempDir()
	started := time.Date(2024, 5, 1, 9, 8, 7, 0, time.UTC)

	var dirs []string
	for i := 0; i < 3; i++ {
		dir, err := NewSessionDir(data, started.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		assert.DirExists(t, dir)
		dirs = append(dirs, filepath.Base(dir))
	}
	assert.Equal(t, []string{"20240501-090807", "20240501-090807-2", "20240501-090807-3"}, dirs)

	for i, name := range dirs {
		_, err := WriteReport(filepath.Join(data, SessionsDir, name), &Report{
			StopReason: ReasonQuit,
			Started:    started.Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}
	entries, err := ScanSessions(filepath.Join(data, SessionsDir))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "20240501-090807-3", entries[0].Name)
}

func TestIsSessionDirName(t *testing.T) {
	for name, want := range map[string]bool{
		"20240501-090807":    true,
		"20240501-090807-2":  true,
		"20240501-090807-17": true,
		"20240501-090807-1":  false,
		"20240501-090807-x":  false,
		"20240501-090807x2":  false,
		"2024-05-01":         false,
		"scratch":            false,
	} {
		assert.Equal(t, want, isSessionDirName(name), name)
	}
}
