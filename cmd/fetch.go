package main

import (
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/fetcher"
	"github.com/sells-group/ownership-cli/internal/resilience"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the vendor snapshot files",
	Long:  "Downloads every file listed in ftp.files from ftp.url (FTP, or an HTTPS mirror) into snapshot.dir, retrying transient failures and unpacking zip archives.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		urls, err := remoteURLs(cfg.FTP.URL, cfg.FTP.Files)
		if err != nil {
			return err
		}

		timeout := time.Duration(cfg.FTP.TimeoutSecs) * time.Second
		f, err := fetcher.ForURL(urls[0],
			fetcher.FTPOptions{Timeout: timeout, User: cfg.FTP.User, Password: cfg.FTP.Password},
			fetcher.HTTPOptions{Timeout: timeout, User: cfg.FTP.User, Password: cfg.FTP.Password},
		)
		if err != nil {
			return err
		}

		m := &fetcher.Mirror{
			Fetcher: f,
			Policy:  resilience.DefaultPolicy().WithAttempts(cfg.FTP.RetryAttempts),
			Dir:     cfg.Snapshot.Dir,
		}
		files, err := m.Sync(ctx, urls)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		zap.L().Info("snapshot files ready",
			zap.String("dir", cfg.Snapshot.Dir),
			zap.Int("files", len(files)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

// remoteURLs joins each configured file onto base. A base without a scheme
// is taken to be an FTP host.
func remoteURLs(base string, files []string) ([]string, error) {
	if base == "" {
		return nil, eris.New("fetch: no remote url configured")
	}
	if !strings.Contains(base, "://") {
		base = "ftp://" + base
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		u, err := url.JoinPath(base, f)
		if err != nil {
			return nil, eris.Wrapf(err, "fetch: join %q", f)
		}
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil, eris.New("fetch: no files configured")
	}
	return out, nil
}
