// Package fetcher mirrors vendor snapshot files over FTP or HTTPS and reads
// the delimited files they contain.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/resilience"
)

// Fetcher downloads remote files.
type Fetcher interface {
	// Download fetches the URL and returns the body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Mirror copies a list of remote files into a local directory, retrying
// transient failures and unpacking zip archives in place.
type Mirror struct {
	Fetcher Fetcher
	Policy  resilience.Policy
	Dir     string
}

// Sync downloads every URL and returns the local paths of the files now
// available, with archives replaced by their contents.
func (m *Mirror) Sync(ctx context.Context, urls []string) ([]string, error) {
	log := zap.L().With(zap.String("component", "fetcher.mirror"))
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fetcher: create %s", m.Dir)
	}

	var files []string
	for _, raw := range urls {
		name, err := FileName(raw)
		if err != nil {
			return files, err
		}
		dest := filepath.Join(m.Dir, name)
		part := dest + ".part"

		p := m.Policy
		if p.OnRetry == nil {
			p.OnRetry = resilience.LogRetry("fetcher.mirror", raw)
		}
		n, err := resilience.Retry(ctx, p, func(ctx context.Context) (int64, error) {
			return m.Fetcher.DownloadToFile(ctx, raw, part)
		})
		if err != nil {
			_ = os.Remove(part)
			return files, eris.Wrapf(err, "fetcher: download %s", raw)
		}
		if err := os.Rename(part, dest); err != nil {
			return files, eris.Wrapf(err, "fetcher: finalize %s", dest)
		}
		log.Info("downloaded", zap.String("url", raw), zap.Int64("bytes", n))

		if !strings.EqualFold(filepath.Ext(dest), ".zip") {
			files = append(files, dest)
			continue
		}
		extracted, err := ExtractZIP(dest, m.Dir)
		if err != nil {
			return files, err
		}
		if err := os.Remove(dest); err != nil {
			log.Warn("fetcher: remove archive", zap.String("path", dest), zap.Error(err))
		}
		log.Info("extracted", zap.String("archive", name), zap.Int("files", len(extracted)))
		files = append(files, extracted...)
	}
	return files, nil
}

// FileName is the last path element of a remote URL.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse %q", rawURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", eris.Errorf("fetcher: no file name in %q", rawURL)
	}
	return name, nil
}

// ForURL picks the fetcher matching the URL scheme.
func ForURL(rawURL string, ftpOpts FTPOptions, httpOpts HTTPOptions) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %q", rawURL)
	}
	switch u.Scheme {
	case "ftp":
		return NewFTPFetcher(ftpOpts), nil
	case "http", "https":
		return NewHTTPFetcher(httpOpts), nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// writeFile copies r into a freshly created file at path.
func writeFile(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	n, err := io.Copy(file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return n, eris.Wrap(err, "fetcher: write file")
}
