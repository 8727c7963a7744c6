package contextsync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/getnao/nao-cli/internal/config"
)

// maxHTTPBody caps a single HTTP source download. Var for tests.
var maxHTTPBody int64 = 10 << 20

// fetchLocal returns the files under src.Path whose base name matches one
// of src.Include, keyed by slash-separated path relative to src.Path.
func fetchLocal(src config.SourceConfig, baseDir string) (map[string][]byte, error) {
	root := src.Path
	if !filepath.IsAbs(root) {
		root = filepath.Join(baseDir, root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	files := make(map[string][]byte)
	if !info.IsDir() {
		data, err := os.ReadFile(root)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		files[filepath.Base(root)] = data
		return files, nil
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesInclude(d.Name(), src.Include) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}
	return files, nil
}

func matchesInclude(name string, include []string) bool {
	if len(include) == 0 {
		return true
	}
	for _, pattern := range include {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// fetchHTTP downloads src.URL into a single file named after the URL path.
func fetchHTTP(ctx context.Context, client *http.Client, userAgent string, src config.SourceConfig) (map[string][]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("source %s: HTTP %d", src.Name, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody+1))
	if err != nil {
		return nil, fmt.Errorf("source %s: read body: %w", src.Name, err)
	}
	if int64(len(data)) > maxHTTPBody {
		return nil, fmt.Errorf("source %s: body exceeds %d bytes", src.Name, maxHTTPBody)
	}
	return map[string][]byte{httpFileName(src.URL): data}, nil
}

func httpFileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "index.md"
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == ".." || base == "/" {
		return "index.md"
	}
	return base
}
