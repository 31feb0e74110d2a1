package remote

import (
	"io"
	"net/textproto"
	"os"
	"path"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/spf13/afero"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func writeTree(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := fs.MkdirAll(path.Dir(name), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := fs.Chtimes(name, testTime, testTime); err != nil {
			t.Fatal(err)
		}
	}
}

// fakeSFTP serves an afero tree the way an SFTP server would.
type fakeSFTP struct {
	fs      afero.Fs
	wd      string
	denied  map[string]bool
	closed  int
	opened  []string
	openErr error
}

func (f *fakeSFTP) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(f.wd, p)
}

func (f *fakeSFTP) ReadDir(p string) ([]os.FileInfo, error) {
	p = f.resolve(p)
	if f.denied[p] {
		return nil, os.ErrPermission
	}
	return afero.ReadDir(f.fs, p)
}

func (f *fakeSFTP) Stat(p string) (os.FileInfo, error) {
	return f.fs.Stat(f.resolve(p))
}

func (f *fakeSFTP) Open(p string) (io.ReadCloser, error) {
	p = f.resolve(p)
	f.opened = append(f.opened, p)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.fs.Open(p)
}

func (f *fakeSFTP) Getwd() (string, error) {
	return f.wd, nil
}

func (f *fakeSFTP) RealPath(p string) (string, error) {
	return f.resolve(p), nil
}

func (f *fakeSFTP) Close() error {
	f.closed++
	return nil
}

// fakeFTP answers like an FTP server rooted at an afero tree.
type fakeFTP struct {
	fs       afero.Fs
	wd       string
	loginErr error
	denied   map[string]bool
	quits    int
}

func notFound(p string) error {
	return &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: p + ": No such file or directory"}
}

func (f *fakeFTP) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(f.wd, p)
}

func (f *fakeFTP) Login(user, password string) error {
	return f.loginErr
}

func (f *fakeFTP) ChangeDir(p string) error {
	p = f.resolve(p)
	info, err := f.fs.Stat(p)
	if err != nil || !info.IsDir() {
		return notFound(p)
	}
	f.wd = p
	return nil
}

func (f *fakeFTP) CurrentDir() (string, error) {
	return f.wd, nil
}

func entry(info os.FileInfo) *ftp.Entry {
	e := &ftp.Entry{
		Name: info.Name(),
		Size: uint64(info.Size()),
		Time: info.ModTime(),
		Type: ftp.EntryTypeFile,
	}
	if info.IsDir() {
		e.Type = ftp.EntryTypeFolder
		e.Size = 0
	}
	return e
}

func (f *fakeFTP) List(p string) ([]*ftp.Entry, error) {
	p = f.resolve(p)
	if f.denied[p] {
		return nil, &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "Permission denied"}
	}
	info, err := f.fs.Stat(p)
	if err != nil {
		return nil, notFound(p)
	}
	if !info.IsDir() {
		return []*ftp.Entry{entry(info)}, nil
	}

	infos, err := afero.ReadDir(f.fs, p)
	if err != nil {
		return nil, err
	}
	entries := []*ftp.Entry{{Name: ".", Type: ftp.EntryTypeFolder}, {Name: "..", Type: ftp.EntryTypeFolder}}
	for _, fi := range infos {
		entries = append(entries, entry(fi))
	}
	return entries, nil
}

func (f *fakeFTP) Retr(p string) (io.ReadCloser, error) {
	file, err := f.fs.Open(f.resolve(p))
	if err != nil {
		return nil, notFound(p)
	}
	return file, nil
}

func (f *fakeFTP) Quit() error {
	f.quits++
	return nil
}
