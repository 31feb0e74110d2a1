package remote

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// sftpSession is the part of *sftp.Client the client relies on.
type sftpSession interface {
	ReadDir(p string) ([]os.FileInfo, error)
	Stat(p string) (os.FileInfo, error)
	Open(p string) (io.ReadCloser, error)
	Getwd() (string, error)
	RealPath(p string) (string, error)
	Close() error
}

// pkgSession adapts *sftp.Client and owns the SSH connection beneath it.
type pkgSession struct {
	*sftp.Client
	conn io.Closer
}

func (s pkgSession) Open(p string) (io.ReadCloser, error) {
	f, err := s.Client.Open(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s pkgSession) Close() error {
	err := s.Client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type sftpOpenFunc func(ctx context.Context, cfg *ssh.ClientConfig) (sftpSession, error)

type sftpClient struct {
	params Params
	retry  RetryPolicy
	log    *zap.Logger
	open   sftpOpenFunc

	session sftpSession
	paths   pathSpace
}

func newSFTPClient(p Params, retry RetryPolicy, log *zap.Logger) *sftpClient {
	c := &sftpClient{
		params: p,
		retry:  retry,
		log:    log,
		paths:  newPathSpace("/", false),
	}
	c.open = c.openSSH
	return c
}

func (c *sftpClient) Server() string {
	return c.params.server()
}

func (c *sftpClient) Root() string {
	return c.paths.top()
}

func (c *sftpClient) Connect(ctx context.Context) error {
	c.log.Info("connecting")

	cfg, err := c.clientConfig()
	if err != nil {
		return &ConnectionError{Server: c.Server(), Err: err}
	}

	err = withRetry(ctx, c.retry, c.log, c.Server(), func(ctx context.Context) error {
		return c.connectOnce(ctx, cfg)
	})
	if err != nil {
		return err
	}

	c.log.Info("connected", zap.String("root", c.paths.root), zap.Bool("chrooted", c.paths.chrooted))
	return nil
}

func (c *sftpClient) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if c.params.PrivateKey != "" {
		signer, err := parsePrivateKey(c.params.PrivateKey, c.params.Passphrase)
		if err != nil {
			return nil, err
		}
		signer, err = restrictSigner(signer, c.params.SSH.DisabledAlgorithms["pubkeys"])
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if password := c.params.Password; password != "" {
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	hostKey, err := hostKeyCallback(c.params.SSH, c.log)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            c.params.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         c.params.Timeout,
		BannerCallback: func(message string) error {
			c.log.Debug("server banner", zap.String("banner", message))
			return nil
		},
	}
	if err := applyDisabledAlgorithms(cfg, c.params.SSH.DisabledAlgorithms); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSSH dials the server, completes the SSH handshake within the banner
// timeout and starts the sftp subsystem.
func (c *sftpClient) openSSH(ctx context.Context, cfg *ssh.ClientConfig) (sftpSession, error) {
	addr := c.params.addr()
	d := net.Dialer{Timeout: c.params.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, transient(err)
	}

	if timeout := c.params.SSH.BannerTimeout; timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, classifySSHError(err)
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	sc, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, transient(err)
	}
	return pkgSession{Client: sc, conn: client}, nil
}

func (c *sftpClient) connectOnce(ctx context.Context, cfg *ssh.ClientConfig) error {
	session, err := c.open(ctx, cfg)
	if err != nil {
		return err
	}

	space, err := c.resolveRoot(session)
	if err != nil {
		_ = session.Close()
		return err
	}

	c.session = session
	c.paths = space
	return nil
}

// resolveRoot finds the physical directory behind the logical root. Jailed
// servers report a working directory that differs from what the transport
// accepts, so the base path is resolved by the server itself.
func (c *sftpClient) resolveRoot(session sftpSession) (pathSpace, error) {
	base := c.params.BasePath
	if base == "" {
		wd, err := session.Getwd()
		if err != nil || wd == "" {
			wd = "/"
		}
		return newPathSpace(wd, false), nil
	}

	resolved, err := session.RealPath(base)
	if err != nil || resolved == "" {
		resolved = "/" + base
	}
	info, err := session.Stat(resolved)
	if err != nil {
		return pathSpace{}, configErrorf("failed to change to base directory %q: %v", base, err)
	}
	if !info.IsDir() {
		return pathSpace{}, configErrorf("failed to change to base directory %q: not a directory", base)
	}
	c.log.Info("changed to base directory", zap.String("path", base), zap.String("resolved", resolved))
	return newPathSpace(resolved, true), nil
}

func (c *sftpClient) Disconnect() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.log.Debug("error closing session", zap.Error(err))
	}
	c.session = nil
	c.log.Info("disconnected")
}

func remoteFile(p string, info os.FileInfo) RemoteFile {
	return RemoteFile{
		Path:       p,
		Name:       path.Base(p),
		Size:       info.Size(),
		ModifiedAt: modTime(info.ModTime()),
		IsDir:      info.IsDir(),
	}
}

func (c *sftpClient) ListFiles(p string, recursive bool) ([]RemoteFile, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}
	start := c.paths.physical(p)

	info, err := c.session.Stat(start)
	if err != nil {
		c.log.Warn("skipping unreadable path", zap.String("path", p), zap.Error(err))
		return nil, nil
	}
	if !info.IsDir() {
		return []RemoteFile{remoteFile(c.paths.logical(start), info)}, nil
	}

	var files []RemoteFile
	var walk func(dir string)
	walk = func(dir string) {
		entries, err := c.session.ReadDir(dir)
		if err != nil {
			c.log.Warn("skipping unreadable directory", zap.String("path", c.paths.logical(dir)), zap.Error(err))
			return
		}

		for _, fi := range entries {
			full := path.Join(dir, fi.Name())

			if fi.Mode()&os.ModeSymlink != 0 {
				target, err := c.session.Stat(full)
				if err != nil || target.IsDir() {
					c.log.Debug("skipping link", zap.String("path", full))
					continue
				}
				fi = target
			}

			if fi.IsDir() {
				if recursive {
					walk(full)
				}
				continue
			}
			files = append(files, remoteFile(c.paths.logical(full), fi))
		}
	}
	walk(start)

	return files, nil
}

func (c *sftpClient) DownloadFile(p string, w io.Writer) error {
	if c.session == nil {
		return ErrNotConnected
	}
	phys := c.paths.physical(p)
	c.log.Info("downloading file", zap.String("path", phys))

	r, err := c.session.Open(phys)
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

func (c *sftpClient) FileExists(p string) (bool, error) {
	if c.session == nil {
		return false, ErrNotConnected
	}
	if _, err := c.session.Stat(c.paths.physical(p)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &PathError{Op: "stat", Path: p, Err: err}
	}
	return true, nil
}

func (c *sftpClient) GetFileInfo(p string) (RemoteFile, error) {
	if c.session == nil {
		return RemoteFile{}, ErrNotConnected
	}
	info, err := c.session.Stat(c.paths.physical(p))
	if err != nil {
		return RemoteFile{}, &PathError{Op: "get file info for", Path: p, Err: err}
	}
	return remoteFile(p, info), nil
}
