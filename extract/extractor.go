// Package extract drives an extraction run: it resolves the configured
// patterns on the remote server, downloads the matches into the data
// directory and writes manifests and incremental state next to them.
//
// Layout of the data directory:
//
//	in/state.json               state of the previous run
//	out/files/<name>            file mode output
//	out/tables/<table>.csv      table mode output
//	out/state.json              state of this run
package extract

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/yarkm13/ftpextract/config"
	"github.com/yarkm13/ftpextract/match"
	"github.com/yarkm13/ftpextract/remote"
)

// Result lists what a run produced.
type Result struct {
	// Files holds the output names written in file mode.
	Files []string
	// Table is the output table name in table mode.
	Table string
}

type Extractor struct {
	Client  remote.Client
	Matcher *match.Matcher
	Config  *config.Config
	DataDir string
	Log     *zap.Logger
	Now     func() time.Time
}

// New returns an Extractor writing below dataDir.
func New(client remote.Client, cfg *config.Config, dataDir string, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		Client:  client,
		Matcher: match.New(client, log),
		Config:  cfg,
		DataDir: dataDir,
		Log:     log,
		Now:     time.Now,
	}
}

func (e *Extractor) path(elem ...string) string {
	return filepath.Join(append([]string{e.DataDir}, elem...)...)
}

// Run performs one extraction. The session is closed on every return path.
func (e *Extractor) Run(ctx context.Context) (Result, error) {
	cfg := e.Config
	if err := cfg.ValidateExtraction(); err != nil {
		return Result{}, userError(err, "invalid configuration")
	}

	e.Log.Info("starting extraction", zap.String("server", e.Client.Server()))

	prev, err := readState(e.path("in", "state.json"))
	if err != nil {
		return Result{}, err
	}

	if err := e.Client.Connect(ctx); err != nil {
		return Result{}, userError(err, "failed to connect to server")
	}
	defer e.Client.Disconnect()

	files := e.Matcher.MatchPatterns(cfg.Patterns())
	if len(files) == 0 {
		e.Log.Warn("no files found matching the selection criteria")
		return Result{}, nil
	}

	if since := prev.Watermark(); cfg.IncrementalMode && !since.IsZero() {
		e.Log.Info("incremental mode: filtering files", zap.Time("modified_after", since))
		files = match.FilterByModificationTime(files, since)
		if len(files) == 0 {
			e.Log.Info("no new or modified files found")
			return Result{}, nil
		}
	}

	e.Log.Info("found files to extract", zap.Int("count", len(files)))

	var (
		res   Result
		count int
	)
	switch cfg.Mode {
	case config.ModeTable:
		name, err := e.extractTable(files[0])
		if err != nil {
			return Result{}, err
		}
		res.Table = name
		count = 1
	default:
		names, err := e.extractFiles(ctx, files)
		if err != nil {
			return Result{}, err
		}
		res.Files = names
		count = len(names)
	}

	if err := writeJSON(e.path("out", "state.json"), newState(e.Now(), count)); err != nil {
		return res, err
	}

	if cfg.Mode == config.ModeTable {
		e.Log.Info("successfully extracted table", zap.String("table", res.Table))
	} else {
		e.Log.Info("successfully extracted files", zap.Int("count", count))
	}
	return res, nil
}

// extractFiles downloads files one by one. A failed download is logged and
// left out of the result.
func (e *Extractor) extractFiles(ctx context.Context, files []remote.RemoteFile) ([]string, error) {
	cfg := e.Config
	extracted := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return extracted, err
		}

		name := outputName(f.Path, cfg.IncludePathInFilename, cfg.AppendTimestamp, e.Now())
		out := e.path("out", "files", name)

		e.Log.Info("extracting file", zap.String("path", f.Path), zap.String("output", name))
		if err := saveRemoteFile(e.Client, f.Path, out); err != nil {
			e.Log.Error("failed to extract file", zap.String("path", f.Path), zap.Error(err))
			continue
		}
		e.Log.Debug("downloaded file", zap.String("path", f.Path), zap.String("size", humanize.Bytes(uint64(f.Size))))

		if err := writeFileManifest(out, cfg.Tags); err != nil {
			return extracted, err
		}
		extracted = append(extracted, name)
	}
	return extracted, nil
}

// extractTable downloads a single file as a table. Any failure is fatal.
func (e *Extractor) extractTable(f remote.RemoteFile) (string, error) {
	cfg := e.Config
	name := tableName(cfg.Destination.TableName, f.Path)
	out := e.path("out", "tables", name)

	e.Log.Info("extracting table", zap.String("path", f.Path), zap.String("table", name))
	if err := saveRemoteFile(e.Client, f.Path, out); err != nil {
		e.Log.Error("failed to extract table", zap.String("path", f.Path), zap.Error(err))
		return "", userError(err, "failed to extract table")
	}
	e.Log.Debug("downloaded table", zap.String("path", f.Path), zap.String("size", humanize.Bytes(uint64(f.Size))))

	columns := cfg.Destination.Columns
	if cfg.HasHeader {
		var err error
		if columns, err = csvHeader(out); err != nil {
			return "", userError(err, "failed to read CSV header")
		}
	}

	err := writeTableManifest(out, tableManifest{
		Columns:     columns,
		PrimaryKey:  cfg.Destination.PrimaryKey,
		Incremental: cfg.Destination.Incremental,
		HasHeader:   cfg.HasHeader,
	})
	if err != nil {
		return "", err
	}
	return name, nil
}
