// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/yarkm13/ftpextract/remote"
)

// Client serves the files of an afero filesystem through the remote.Client
// contract.
type Client struct {
	FS   afero.Fs
	Home string

	// ConnectErr is returned by every Connect call when set.
	ConnectErr error
	// DownloadErr fails downloads of the named paths.
	DownloadErr map[string]error
	// ListErr fails listings of the named directories.
	ListErr map[string]error

	Connects    int
	Disconnects int
	Downloads   []string

	connected bool
}

var _ remote.Client = (*Client)(nil)

// New returns a client over fs rooted at "/".
func New(fs afero.Fs) *Client {
	return &Client{FS: fs, Home: "/"}
}

// AddFile writes content at p and sets its modification time.
func (c *Client) AddFile(p, content string, modified time.Time) {
	if err := c.FS.MkdirAll(path.Dir(p), 0o755); err != nil {
		panic(err)
	}
	if err := afero.WriteFile(c.FS, p, []byte(content), 0o644); err != nil {
		panic(err)
	}
	if err := c.FS.Chtimes(p, modified, modified); err != nil {
		panic(err)
	}
}

func (c *Client) Connect(context.Context) error {
	c.Connects++
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.connected = true
	return nil
}

func (c *Client) Disconnect() {
	if c.connected {
		c.Disconnects++
	}
	c.connected = false
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	return c.connected
}

func (c *Client) Root() string {
	return c.Home
}

func (c *Client) Server() string {
	return "memory"
}

func (c *Client) resolve(p string) string {
	if p == "" {
		return c.Home
	}
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(c.Home, p)
}

func file(p string, info os.FileInfo) remote.RemoteFile {
	return remote.RemoteFile{
		Path:       p,
		Name:       path.Base(p),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
		IsDir:      info.IsDir(),
	}
}

func (c *Client) ListFiles(p string, recursive bool) ([]remote.RemoteFile, error) {
	if !c.connected {
		return nil, remote.ErrNotConnected
	}
	if err := c.ListErr[p]; err != nil {
		return nil, err
	}

	var files []remote.RemoteFile
	var walk func(dir string)
	walk = func(dir string) {
		if c.ListErr[dir] != nil {
			return
		}
		infos, err := afero.ReadDir(c.FS, c.resolve(dir))
		if err != nil {
			return
		}
		sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
		for _, info := range infos {
			full := path.Join(dir, info.Name())
			if info.IsDir() {
				if recursive {
					walk(full)
				}
				continue
			}
			files = append(files, file(full, info))
		}
	}
	walk(p)
	return files, nil
}

func (c *Client) DownloadFile(p string, w io.Writer) error {
	if !c.connected {
		return remote.ErrNotConnected
	}
	c.Downloads = append(c.Downloads, p)
	if err := c.DownloadErr[p]; err != nil {
		return &remote.PathError{Op: "download", Path: p, Err: err}
	}
	f, err := c.FS.Open(c.resolve(p))
	if err != nil {
		return &remote.PathError{Op: "download", Path: p, Err: err}
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return &remote.PathError{Op: "download", Path: p, Err: err}
	}
	return nil
}

func (c *Client) FileExists(p string) (bool, error) {
	if !c.connected {
		return false, remote.ErrNotConnected
	}
	return afero.Exists(c.FS, c.resolve(p))
}

func (c *Client) GetFileInfo(p string) (remote.RemoteFile, error) {
	if !c.connected {
		return remote.RemoteFile{}, remote.ErrNotConnected
	}
	info, err := c.FS.Stat(c.resolve(p))
	if err != nil {
		return remote.RemoteFile{}, &remote.PathError{Op: "get file info for", Path: p, Err: err}
	}
	return file(p, info), nil
}
