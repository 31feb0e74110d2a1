package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/yarkm13/ftpextract/remote"
)

// headerLimit bounds the bytes downloaded to read a CSV header.
const headerLimit = 8 * 1024

// SelectElement is one option offered to the user by a listing action.
type SelectElement struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// TestConnection opens and closes a session.
func (e *Extractor) TestConnection(ctx context.Context) error {
	if err := e.Client.Connect(ctx); err != nil {
		return userError(err, "connection test failed")
	}
	e.Client.Disconnect()
	e.Log.Info("connection test successful")
	return nil
}

// ListAllFiles lists every file below the session root.
func (e *Extractor) ListAllFiles(ctx context.Context) ([]remote.RemoteFile, error) {
	if err := e.Client.Connect(ctx); err != nil {
		return nil, userError(err, "failed to list files")
	}
	defer e.Client.Disconnect()

	files, err := e.Client.ListFiles(e.Client.Root(), true)
	if err != nil {
		return nil, userError(err, "failed to list files")
	}
	return files, nil
}

// FileElements turns a listing into select options labelled with sizes.
func FileElements(files []remote.RemoteFile) []SelectElement {
	out := make([]SelectElement, len(files))
	for i, f := range files {
		out[i] = SelectElement{
			Value: f.Path,
			Label: fmt.Sprintf("%s (%s)", f.Path, humanize.Bytes(uint64(f.Size))),
		}
	}
	return out
}

// ColumnElements turns column names into select options.
func ColumnElements(columns []string) []SelectElement {
	out := make([]SelectElement, len(columns))
	for i, c := range columns {
		out[i] = SelectElement{Value: c, Label: c}
	}
	return out
}

// LoadCSVColumns reads the header row of the table file, or of the first
// configured file. Only the beginning of the file is downloaded.
func (e *Extractor) LoadCSVColumns(ctx context.Context) ([]string, error) {
	file := e.Config.TableFile
	if file == "" && len(e.Config.Files) > 0 {
		file = e.Config.Files[0]
	}
	if file == "" {
		return nil, userError(nil, "no file selected, select a file first")
	}

	if err := e.Client.Connect(ctx); err != nil {
		return nil, userError(err, "failed to load CSV columns")
	}
	defer e.Client.Disconnect()

	w := &limitWriter{n: headerLimit}
	if err := e.Client.DownloadFile(file, w); err != nil && !errors.Is(err, errLimitReached) {
		return nil, userError(err, "failed to load CSV columns")
	}

	header, err := csv.NewReader(bytes.NewReader(w.buf)).Read()
	if err != nil {
		return nil, userError(err, "failed to load CSV columns from %s", file)
	}
	return header, nil
}
