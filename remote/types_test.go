package remote

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// bulkReader offers WriteTo, which a chunked copy must not use.
type bulkReader struct {
	io.Reader
}

func (bulkReader) WriteTo(io.Writer) (int64, error) {
	return 0, errors.New("WriteTo used")
}

// recordingWriter offers ReadFrom, which a chunked copy must not use.
type recordingWriter struct {
	bytes.Buffer
	writes []int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, len(p))
	return w.Buffer.Write(p)
}

func (*recordingWriter) ReadFrom(io.Reader) (int64, error) {
	return 0, errors.New("ReadFrom used")
}

func TestCopyChunksUsesFixedBuffer(t *testing.T) {
	src := bytes.Repeat([]byte("0123456789"), 10*1024)
	w := &recordingWriter{}

	n, err := copyChunks(w, bulkReader{bytes.NewReader(src)})
	if err != nil {
		t.Fatalf("copyChunks: %v", err)
	}
	if n != int64(len(src)) || !bytes.Equal(w.Bytes(), src) {
		t.Fatalf("copied %d bytes, content mismatch", n)
	}
	if len(w.writes) != 4 {
		t.Errorf("writes = %v, want 4 chunks", w.writes)
	}
	for i, size := range w.writes {
		if size > chunkSize {
			t.Errorf("write %d is %d bytes, larger than %d", i, size, chunkSize)
		}
	}
	if w.writes[0] != chunkSize {
		t.Errorf("first write = %d, want %d", w.writes[0], chunkSize)
	}
}
