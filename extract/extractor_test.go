package extract

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yarkm13/ftpextract/config"
	"github.com/yarkm13/ftpextract/remote/remotetest"
)

var (
	jan = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	feb = time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	mar = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	runTime = time.Date(2024, 4, 1, 12, 30, 45, 0, time.UTC)
)

type fixture struct {
	client  *remotetest.Client
	cfg     *config.Config
	dataDir string
	log     *zap.Logger
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	core, logs := observer.New(zapcore.DebugLevel)
	return &fixture{
		client:  remotetest.New(afero.NewMemMapFs()),
		cfg:     &cfg,
		dataDir: t.TempDir(),
		log:     zap.New(core),
		logs:    logs,
	}
}

func (f *fixture) extractor() *Extractor {
	e := New(f.client, f.cfg, f.dataDir, f.log)
	e.Now = func() time.Time { return runTime }
	return e
}

func (f *fixture) out(elem ...string) string {
	return filepath.Join(append([]string{f.dataDir, "out"}, elem...)...)
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("%s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunContinuesPastFailedDownload(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("/in/a.csv", "a\n", jan)
	f.client.AddFile("/in/b.csv", "b\n", jan)
	f.client.AddFile("/in/c.csv", "c\n", jan)
	f.client.DownloadErr = map[string]error{"/in/b.csv": errors.New("connection reset")}
	f.cfg.Files = []string{"/in/*.csv"}
	f.cfg.Tags = []string{"ftp"}

	res, err := f.extractor().Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"a.csv", "c.csv"}; !equal(res.Files, want) {
		t.Errorf("Files = %v, want %v", res.Files, want)
	}
	if n := f.logs.FilterMessage("failed to extract file").Len(); n != 1 {
		t.Errorf("failure events = %d, want 1", n)
	}
	if exists(f.out("files", "b.csv")) {
		t.Error("partial output of failed download left behind")
	}
	for _, name := range res.Files {
		data, err := os.ReadFile(f.out("files", name))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != name[:1]+"\n" {
			t.Errorf("%s content = %q", name, data)
		}

		var m fileManifest
		readJSON(t, f.out("files", name+".manifest"), &m)
		if !m.IsPermanent || m.IsPublic || !equal(m.Tags, []string{"ftp"}) {
			t.Errorf("%s manifest = %+v", name, m)
		}
	}

	var s State
	readJSON(t, f.out("state.json"), &s)
	if s.FilesExtracted != 2 || !s.Watermark().Equal(runTime) {
		t.Errorf("state = %+v", s)
	}
	if f.client.Connected() || f.client.Disconnects != 1 {
		t.Errorf("session not closed: connected=%v disconnects=%d", f.client.Connected(), f.client.Disconnects)
	}
}

func TestRunFileNaming(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("/in/sub/report.csv", "x", jan)
	f.cfg.Files = []string{"/in/**"}
	f.cfg.IncludePathInFilename = true
	f.cfg.AppendTimestamp = true

	res, err := f.extractor().Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "in_sub_report_20240401123045.csv"
	if len(res.Files) != 1 || res.Files[0] != want {
		t.Fatalf("Files = %v, want [%s]", res.Files, want)
	}
	if !exists(f.out("files", want)) {
		t.Error("output file missing")
	}
}

func TestRunTableMode(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("/exports/users.csv", "id,name\n1,ada\n", jan)
	f.cfg.Mode = config.ModeTable
	f.cfg.TableFile = "/exports/users.csv"
	f.cfg.Destination.PrimaryKey = []string{"id"}
	f.cfg.Destination.Incremental = true

	res, err := f.extractor().Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Table != "users.csv" {
		t.Fatalf("Table = %q", res.Table)
	}

	var m tableManifest
	readJSON(t, f.out("tables", "users.csv.manifest"), &m)
	if !equal(m.Columns, []string{"id", "name"}) || !equal(m.PrimaryKey, []string{"id"}) || !m.Incremental || !m.HasHeader {
		t.Errorf("manifest = %+v", m)
	}

	var s State
	readJSON(t, f.out("state.json"), &s)
	if s.FilesExtracted != 1 {
		t.Errorf("files_extracted = %d", s.FilesExtracted)
	}
}

func TestRunTableModeWithoutHeader(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("/exports/raw.txt", "1,ada\n", jan)
	f.cfg.Mode = config.ModeTable
	f.cfg.Files = []string{"/exports/raw.txt"}
	f.cfg.HasHeader = false
	f.cfg.Destination.TableName = "people"
	f.cfg.Destination.Columns = []string{"id", "name"}

	res, err := f.extractor().Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Table != "people.csv" {
		t.Fatalf("Table = %q", res.Table)
	}
	var m tableManifest
	readJSON(t, f.out("tables", "people.csv.manifest"), &m)
	if !equal(m.Columns, []string{"id", "name"}) || m.HasHeader {
		t.Errorf("manifest = %+v", m)
	}
}

func TestRunTableDownloadFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("/exports/users.csv", "id\n", jan)
	f.client.DownloadErr = map[string]error{"/exports/users.csv": errors.New("broken pipe")}
	f.cfg.Mode = config.ModeTable
	f.cfg.TableFile = "/exports/users.csv"

	_, err := f.extractor().Run(t.Context())
	if !IsUserError(err) {
		t.Fatalf("Run error = %v, want user error", err)
	}
	if exists(f.out("state.json")) || exists(f.out("tables", "users.csv")) {
		t.Error("failed table run left output behind")
	}
	if f.client.Connected() {
		t.Error("session left open")
	}
}

func TestRunIncremental(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("/in/old.csv", "old", jan)
	f.client.AddFile("/in/new.csv", "new", mar)
	f.cfg.Files = []string{"/in/*.csv"}
	f.cfg.IncrementalMode = true

	if err := writeJSON(filepath.Join(f.dataDir, "in", "state.json"), State{LastExtractionTime: float64(feb.Unix())}); err != nil {
		t.Fatal(err)
	}

	res, err := f.extractor().Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !equal(res.Files, []string{"new.csv"}) {
		t.Errorf("Files = %v", res.Files)
	}
}

func TestRunIncrementalNothingNew(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("/in/old.csv", "old", jan)
	f.cfg.Files = []string{"/in/*.csv"}
	f.cfg.IncrementalMode = true
	if err := writeJSON(filepath.Join(f.dataDir, "in", "state.json"), State{LastExtractionTime: float64(feb.Unix())}); err != nil {
		t.Fatal(err)
	}

	res, err := f.extractor().Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Files) != 0 || exists(f.out("state.json")) {
		t.Errorf("expected no output, got %+v", res)
	}
}

func TestRunNoMatches(t *testing.T) {
	f := newFixture(t)
	f.cfg.Files = []string{"/in/*.csv"}

	res, err := f.extractor().Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Files) != 0 {
		t.Errorf("Files = %v", res.Files)
	}
	if n := f.logs.FilterMessage("no files found matching the selection criteria").Len(); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
	if exists(f.out("state.json")) {
		t.Error("state written without files")
	}
}

func TestRunConnectFailure(t *testing.T) {
	f := newFixture(t)
	f.cfg.Files = []string{"/in/*.csv"}
	f.client.ConnectErr = errors.New("dial tcp: connection refused")

	_, err := f.extractor().Run(t.Context())
	if !IsUserError(err) {
		t.Fatalf("Run error = %v, want user error", err)
	}
	if f.client.Disconnects != 0 {
		t.Errorf("disconnects = %d", f.client.Disconnects)
	}
}

func TestRunRequiresPatterns(t *testing.T) {
	f := newFixture(t)
	_, err := f.extractor().Run(t.Context())
	if !IsUserError(err) {
		t.Fatalf("Run error = %v, want user error", err)
	}
	if f.client.Connects != 0 {
		t.Error("connected despite invalid configuration")
	}
}

func TestRunInvalidState(t *testing.T) {
	f := newFixture(t)
	f.cfg.Files = []string{"/in/*.csv"}
	in := filepath.Join(f.dataDir, "in")
	if err := os.MkdirAll(in, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in, "state.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.extractor().Run(t.Context()); err == nil {
		t.Fatal("expected error for corrupt state")
	}
}
