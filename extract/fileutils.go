package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yarkm13/ftpextract/remote"
)

// saveRemoteFile downloads remotePath into localPath. A failed download
// leaves no partial file behind.
func saveRemoteFile(client remote.Client, remotePath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	destFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	err = client.DownloadFile(remotePath, destFile)
	if cerr := destFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return err
	}
	return nil
}

var errLimitReached = errors.New("read limit reached")

// limitWriter keeps the first n bytes written to it and then fails, which
// aborts a streaming download early.
type limitWriter struct {
	buf []byte
	n   int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	room := w.n - len(w.buf)
	if len(p) <= room {
		w.buf = append(w.buf, p...)
		return len(p), nil
	}
	w.buf = append(w.buf, p[:room]...)
	return room, errLimitReached
}

var _ io.Writer = (*limitWriter)(nil)
