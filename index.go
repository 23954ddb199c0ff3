package picar

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// SessionsDir holds one artifact directory per logging run, kept apart
	// from the samples so the data directory contains only training images.
	SessionsDir = "sessions"
	// SessionDirLayout names each run directory by its start time. Runs
	// started in the same second get a "-2", "-3", ... suffix.
	SessionDirLayout = "20060102-150405"
	// ContactSheetFile is written next to the session report.
	ContactSheetFile = "contact-sheet.png"
	// IndexFile lists every recorded session.
	IndexFile = "index.html"
)

// SessionEntry is one recorded run found under the sessions directory.
type SessionEntry struct {
	Name         string // Run directory name
	Report       *Report
	ReportPath   string // Relative to the sessions directory
	ContactSheet string // Relative to the sessions directory, empty when none was written
}

// NewSessionDir creates and returns a fresh artifact directory for a run
// started at started. An existing directory is never reused.
func NewSessionDir(dataDir string, started time.Time) (string, error) {
	parent := filepath.Join(dataDir, SessionsDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("failed to create sessions directory: %w", err)
	}

	base := started.Format(SessionDirLayout)
	name := base
	for n := 2; ; n++ {
		dir := filepath.Join(parent, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create session directory: %w", err)
		}
		name = fmt.Sprintf("%s-%d", base, n)
	}
}

// isSessionDirName reports whether name was made by NewSessionDir.
func isSessionDirName(name string) bool {
	stamp, suffix := name, ""
	if len(name) > len(SessionDirLayout) {
		stamp, suffix = name[:len(SessionDirLayout)], name[len(SessionDirLayout):]
	}
	if _, err := time.Parse(SessionDirLayout, stamp); err != nil {
		return false
	}
	if suffix == "" {
		return true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(suffix, "-"))
	return strings.HasPrefix(suffix, "-") && err == nil && n >= 2
}

// ScanSessions reads every session report under dir, newest first.
// Directories without a readable report are skipped.
func ScanSessions(dir string) ([]SessionEntry, error) {
	dirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	var entries []SessionEntry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		if !isSessionDirName(d.Name()) {
			continue
		}

		rep, err := ReadReport(filepath.Join(dir, d.Name(), ReportFile))
		if err != nil {
			continue
		}

		entry := SessionEntry{
			Name:       d.Name(),
			Report:     rep,
			ReportPath: filepath.ToSlash(filepath.Join(d.Name(), ReportFile)),
		}
		if _, err := os.Stat(filepath.Join(dir, d.Name(), ContactSheetFile)); err == nil {
			entry.ContactSheet = filepath.ToSlash(filepath.Join(d.Name(), ContactSheetFile))
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Report.Started.After(entries[j].Report.Started)
	})
	return entries, nil
}

// WriteSessionIndex writes an HTML page into dir listing every session
// found there, and returns its path.
func WriteSessionIndex(dir string) (string, error) {
	entries, err := ScanSessions(dir)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, IndexFile)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create session index: %w", err)
	}
	defer file.Close()

	data := struct {
		Sessions    []SessionEntry
		GeneratedAt time.Time
	}{
		Sessions:    entries,
		GeneratedAt: time.Now(),
	}
	if err := indexTemplate.Execute(file, data); err != nil {
		return "", fmt.Errorf("failed to execute session index template: %w", err)
	}
	return path, nil
}

var indexTemplate = template.Must(template.New("sessions").Funcs(template.FuncMap{
	"ms": func(d time.Duration) time.Duration { return d.Round(time.Millisecond) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>picar sessions</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; }
table { border-collapse: collapse; }
td, th { padding: 4px 12px; border-bottom: 1px solid #333; text-align: left; }
.fault { color: #e55; }
img { max-width: 480px; }
</style>
</head>
<body>
<h1>picar sessions</h1>
<p>{{len .Sessions}} sessions, generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>
<table>
<tr><th>started</th><th>duration</th><th>stop</th><th>frames</th><th>samples</th><th>report</th><th>contact sheet</th></tr>
{{range .Sessions}}<tr>
<td>{{.Report.Started.Format "2006-01-02 15:04:05"}}</td>
<td>{{ms .Report.Duration}}</td>
<td>{{if .Report.Faulted}}<span class="fault">fault: {{.Report.Fault}}</span>{{else}}{{.Report.StopReason}}{{end}}</td>
<td>{{.Report.Frames}}</td>
<td>{{.Report.Samples}}</td>
<td><a href="{{.ReportPath}}">{{.Name}}</a></td>
<td>{{if .ContactSheet}}<a href="{{.ContactSheet}}"><img src="{{.ContactSheet}}" alt="{{.Name}}"></a>{{end}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))
