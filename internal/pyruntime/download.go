package pyruntime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// ErrDownloadFailed covers non-200 responses and transport errors.
var ErrDownloadFailed = errors.New("download failed")

// download streams url to dest, reporting fractional progress when the
// response carries a Content-Length. Redirects (301/302/307/308) are
// followed by the default http.Client transparently. Progress is
// best-effort: with an unknown length only the final 100 is reported.
func download(ctx context.Context, client *http.Client, url, dest string, onProgress func(float64)) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrDownloadFailed, url, resp.Status)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() { _ = f.Close() }()

	total := resp.ContentLength
	var written int64
	buf := make([]byte, 128*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: %v", ErrDownloadFailed, werr)
			}
			written += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(float64(written) / float64(total) * 100)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("%w: %v", ErrDownloadFailed, rerr)
		}
	}
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}
