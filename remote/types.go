package remote

import (
	"context"
	"io"
	"time"
)

// Protocol selects the wire protocol used to reach the server.
type Protocol string

const (
	ProtocolFTP          Protocol = "ftp"
	ProtocolExplicitFTPS Protocol = "ex-ftps"
	ProtocolImplicitFTPS Protocol = "im-ftps"
	ProtocolSFTP         Protocol = "sftp"
)

// DefaultPort returns the well known port of the protocol.
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolSFTP:
		return 22
	case ProtocolImplicitFTPS:
		return 990
	default:
		return 21
	}
}

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolFTP, ProtocolExplicitFTPS, ProtocolImplicitFTPS, ProtocolSFTP:
		return true
	}
	return false
}

// TLS reports whether the protocol is one of the FTPS variants.
func (p Protocol) TLS() bool {
	return p == ProtocolExplicitFTPS || p == ProtocolImplicitFTPS
}

// RemoteFile describes a single entry on the remote server.
type RemoteFile struct {
	Path       string
	Name       string
	Size       int64
	ModifiedAt time.Time
	IsDir      bool
}

// Client is the operation set shared by every protocol variant.
//
// A Client owns one live session and is not safe for concurrent use.
// Callers must pair every successful Connect with Disconnect.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()

	// ListFiles returns the non-directory entries under path. With recursive
	// set it descends into subdirectories, skipping those that can't be read.
	ListFiles(path string, recursive bool) ([]RemoteFile, error)
	DownloadFile(path string, w io.Writer) error
	FileExists(path string) (bool, error)
	GetFileInfo(path string) (RemoteFile, error)

	// Root is the directory unanchored patterns resolve against.
	Root() string
	Server() string
}

// chunkSize is the copy buffer used for downloads.
const chunkSize = 32 * 1024

// copyChunks streams r into w through a chunkSize buffer. The wrappers hide
// io.WriterTo and io.ReaderFrom so the buffer is always the one used.
func copyChunks(w io.Writer, r io.Reader) (int64, error) {
	return io.CopyBuffer(struct{ io.Writer }{w}, struct{ io.Reader }{r}, make([]byte, chunkSize))
}

// modTime falls back to the current time when the server omits it.
func modTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
