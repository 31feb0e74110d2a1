package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"
)

// ftpConn is the part of *ftp.ServerConn the client relies on.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	CurrentDir() (string, error)
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	r, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type ftpDialFunc func(ctx context.Context, addr string, opts ...ftp.DialOption) (ftpConn, error)

func dialFTP(ctx context.Context, addr string, opts ...ftp.DialOption) (ftpConn, error) {
	opts = append(opts, ftp.DialWithContext(ctx))
	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

// ftpClient serves FTP, explicit FTPS and implicit FTPS. The variants only
// differ in the dial options.
type ftpClient struct {
	params Params
	retry  RetryPolicy
	log    *zap.Logger
	dial   ftpDialFunc

	conn ftpConn
	root string
}

func newFTPClient(p Params, retry RetryPolicy, log *zap.Logger) *ftpClient {
	return &ftpClient{
		params: p,
		retry:  retry,
		log:    log,
		dial:   dialFTP,
		root:   "/",
	}
}

func (c *ftpClient) Server() string {
	return c.params.server()
}

func (c *ftpClient) Root() string {
	return c.root
}

func (c *ftpClient) dialOptions() []ftp.DialOption {
	opts := []ftp.DialOption{ftp.DialWithTimeout(c.params.Timeout)}

	tlsConfig := &tls.Config{
		ServerName:         c.params.Host,
		InsecureSkipVerify: c.params.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: tls.NewLRUClientSessionCache(0),
	}
	switch c.params.Protocol {
	case ProtocolImplicitFTPS:
		opts = append(opts, ftp.DialWithTLS(tlsConfig))
	case ProtocolExplicitFTPS:
		opts = append(opts, ftp.DialWithExplicitTLS(tlsConfig))
	}
	return opts
}

func (c *ftpClient) Connect(ctx context.Context) error {
	c.log.Info("connecting")
	if !c.params.PassiveMode {
		c.log.Warn("active mode is not supported, using passive mode")
	}
	if err := withRetry(ctx, c.retry, c.log, c.Server(), c.connectOnce); err != nil {
		return err
	}
	c.log.Info("connected", zap.String("root", c.root))
	return nil
}

func (c *ftpClient) connectOnce(ctx context.Context) error {
	conn, err := c.dial(ctx, c.params.addr(), c.dialOptions()...)
	if err != nil {
		return classifyFTPError(err)
	}

	if err := conn.Login(c.params.User, c.params.Password); err != nil {
		_ = conn.Quit()
		return classifyFTPError(err)
	}

	root := "/"
	if base := c.params.BasePath; base != "" {
		if err := conn.ChangeDir(base); err != nil {
			_ = conn.Quit()
			return configErrorf("failed to change to base directory %q: %v", base, err)
		}
		root = "."
		if wd, err := conn.CurrentDir(); err == nil && wd != "" {
			root = wd
		}
		c.log.Info("changed to base directory", zap.String("path", base))
	}

	c.conn = conn
	c.root = root
	return nil
}

// classifyFTPError separates permanent replies from ones worth retrying.
func classifyFTPError(err error) error {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		switch {
		case reply.Code == ftp.StatusNotLoggedIn:
			return fmt.Errorf("authentication failed: %w", err)
		case reply.Code >= 500:
			return fmt.Errorf("permission error: %w", err)
		default:
			return transient(err)
		}
	}

	var verify *tls.CertificateVerificationError
	if errors.As(err, &verify) {
		return err
	}
	return transient(err)
}

func isFTPNotFound(err error) bool {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		return reply.Code == ftp.StatusFileUnavailable || reply.Code == ftp.StatusFileActionIgnored
	}
	return false
}

func (c *ftpClient) Disconnect() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Quit(); err != nil {
		c.log.Debug("error closing connection", zap.Error(err))
	}
	c.conn = nil
	c.log.Info("disconnected")
}

func (c *ftpClient) clean(p string) string {
	if p == "" {
		return c.root
	}
	return path.Clean(p)
}

func (c *ftpClient) ListFiles(p string, recursive bool) ([]RemoteFile, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	p = c.clean(p)

	info, err := c.stat(p)
	if err != nil {
		c.log.Warn("skipping unreadable path", zap.String("path", p), zap.Error(err))
		return nil, nil
	}
	if !info.IsDir {
		return []RemoteFile{info}, nil
	}

	var files []RemoteFile
	visited := make(map[string]bool)

	var walk func(dir string)
	walk = func(dir string) {
		if visited[dir] {
			c.log.Debug("skipping already visited path", zap.String("path", dir))
			return
		}
		visited[dir] = true

		entries, err := c.conn.List(dir)
		if err != nil {
			c.log.Warn("skipping unreadable directory", zap.String("path", dir), zap.Error(err))
			return
		}

		for _, e := range entries {
			name := entryName(e)
			if name == "." || name == ".." || name == "" {
				continue
			}
			full := path.Join(dir, name)

			switch e.Type {
			case ftp.EntryTypeFolder:
				if recursive {
					walk(full)
				}
			default:
				files = append(files, fileFromEntry(full, e))
			}
		}
	}
	walk(p)

	return files, nil
}

func entryName(e *ftp.Entry) string {
	if strings.Contains(e.Name, "/") {
		return path.Base(e.Name)
	}
	return e.Name
}

func fileFromEntry(p string, e *ftp.Entry) RemoteFile {
	return RemoteFile{
		Path:       p,
		Name:       path.Base(p),
		Size:       int64(e.Size),
		ModifiedAt: modTime(e.Time),
		IsDir:      e.Type == ftp.EntryTypeFolder,
	}
}

// stat looks the entry up in its parent listing since plain FTP has no
// portable single-file stat.
func (c *ftpClient) stat(p string) (RemoteFile, error) {
	cleaned := c.clean(p)
	if cleaned == "/" || cleaned == "." || cleaned == c.root {
		return RemoteFile{Path: p, Name: path.Base(cleaned), ModifiedAt: time.Now(), IsDir: true}, nil
	}

	entries, err := c.conn.List(path.Dir(cleaned))
	if err != nil {
		if isFTPNotFound(err) {
			return RemoteFile{}, fs.ErrNotExist
		}
		return RemoteFile{}, err
	}

	name := path.Base(cleaned)
	for _, e := range entries {
		if entryName(e) == name {
			f := fileFromEntry(p, e)
			f.Name = name
			return f, nil
		}
	}
	return RemoteFile{}, fs.ErrNotExist
}

func (c *ftpClient) FileExists(p string) (bool, error) {
	if c.conn == nil {
		return false, ErrNotConnected
	}
	if _, err := c.stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &PathError{Op: "stat", Path: p, Err: err}
	}
	return true, nil
}

func (c *ftpClient) GetFileInfo(p string) (RemoteFile, error) {
	if c.conn == nil {
		return RemoteFile{}, ErrNotConnected
	}
	info, err := c.stat(p)
	if err != nil {
		return RemoteFile{}, &PathError{Op: "get file info for", Path: p, Err: err}
	}
	return info, nil
}

func (c *ftpClient) DownloadFile(p string, w io.Writer) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	c.log.Info("downloading file", zap.String("path", p))

	r, err := c.conn.Retr(c.clean(p))
	if err != nil {
		return &PathError{Op: "download", Path: p, Err: err}
	}

	_, err = copyChunks(w, r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &PathError{Op: "download", Path: p, Err: err}
	}
	return nil
}
