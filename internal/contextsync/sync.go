// Package contextsync copies configured sources into the project's context
// directory and keeps a manifest so repeated runs only touch what changed.
package contextsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/getnao/nao-cli/internal/config"
)

// Report lists what a sync run did (or would do, in dry-run mode).
// Paths are relative to the context directory.
type Report struct {
	Added     []string
	Updated   []string
	Unchanged []string
	Removed   []string
	Failed    []string
	DryRun    bool
}

// Changed reports whether the run wrote or removed anything.
func (r Report) Changed() bool {
	return len(r.Added)+len(r.Updated)+len(r.Removed) > 0
}

// Syncer runs context sync for a project.
type Syncer struct {
	ProjectRoot  string
	ContextDir   string
	ManifestPath string
	DryRun       bool
	UserAgent    string
	Client       *http.Client
	Logger       *log.Logger
	Now          func() time.Time
}

// New creates a Syncer for a loaded project.
func New(p *config.Project, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Syncer{
		ProjectRoot:  p.Root,
		ContextDir:   p.ContextPath(),
		ManifestPath: filepath.Join(p.StatePath(), ManifestFile),
		Client:       &http.Client{Timeout: 30 * time.Second},
		Logger:       logger,
		Now:          time.Now,
	}
}

// Run syncs sources into the context directory. When only is non-empty just
// the named sources are synced and files of other sources are kept. Errors
// from individual sources do not stop the run; they are joined and returned
// alongside the report.
func (s *Syncer) Run(ctx context.Context, sources []config.SourceConfig, only ...string) (Report, error) {
	report := Report{DryRun: s.DryRun}

	selected, err := selectSources(sources, only)
	if err != nil {
		return report, err
	}

	old, err := LoadManifest(s.ManifestPath)
	if err != nil {
		return report, err
	}
	next := &Manifest{Files: make(map[string]FileEntry)}

	// Sources whose old files may be pruned.
	prunable := make(map[string]bool)
	if len(only) == 0 {
		configured := make(map[string]bool, len(sources))
		for _, src := range sources {
			configured[src.Name] = true
		}
		for _, e := range old.Files {
			if !configured[e.Source] {
				prunable[e.Source] = true
			}
		}
	}

	var errs []error
	for _, src := range selected {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		files, err := s.fetch(ctx, src)
		if err != nil {
			s.Logger.Warn("source failed", "source", src.Name, "err", err)
			errs = append(errs, err)
			report.Failed = append(report.Failed, src.Name)
			continue
		}
		prunable[src.Name] = true
		s.Logger.Debug("fetched source", "source", src.Name, "files", len(files))

		for rel, data := range files {
			dest := path.Join(src.Name, rel)
			if _, err := s.target(dest); err != nil {
				errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
				continue
			}
			entry := FileEntry{SHA256: hashBytes(data), Size: int64(len(data)), Source: src.Name}
			next.Files[dest] = entry

			prev, existed := old.Files[dest]
			switch {
			case !existed:
				report.Added = append(report.Added, dest)
			case prev.SHA256 == entry.SHA256 && s.exists(dest):
				report.Unchanged = append(report.Unchanged, dest)
				continue
			default:
				report.Updated = append(report.Updated, dest)
			}
			if !s.DryRun {
				if err := s.write(dest, data); err != nil {
					errs = append(errs, fmt.Errorf("write %s: %w", dest, err))
				}
			}
		}
	}

	for dest, entry := range old.Files {
		if _, kept := next.Files[dest]; kept {
			continue
		}
		if !prunable[entry.Source] {
			next.Files[dest] = entry
			continue
		}
		if _, err := s.target(dest); err != nil {
			errs = append(errs, fmt.Errorf("manifest entry %w", err))
			continue
		}
		report.Removed = append(report.Removed, dest)
		if !s.DryRun {
			if err := s.remove(dest); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", dest, err))
			}
		}
	}

	sort.Strings(report.Added)
	sort.Strings(report.Updated)
	sort.Strings(report.Unchanged)
	sort.Strings(report.Removed)

	if !s.DryRun {
		next.SyncedAt = s.now()
		if err := next.Save(s.ManifestPath); err != nil {
			errs = append(errs, fmt.Errorf("save manifest: %w", err))
		}
	}
	return report, errors.Join(errs...)
}

func selectSources(sources []config.SourceConfig, only []string) ([]config.SourceConfig, error) {
	if len(only) == 0 {
		return sources, nil
	}
	byName := make(map[string]config.SourceConfig, len(sources))
	for _, src := range sources {
		byName[src.Name] = src
	}
	var selected []config.SourceConfig
	for _, name := range only {
		src, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		selected = append(selected, src)
	}
	return selected, nil
}

func (s *Syncer) fetch(ctx context.Context, src config.SourceConfig) (map[string][]byte, error) {
	switch src.Type {
	case config.SourceLocal:
		return fetchLocal(src, s.ProjectRoot)
	case config.SourceHTTP:
		client := s.Client
		if client == nil {
			client = http.DefaultClient
		}
		return fetchHTTP(ctx, client, s.UserAgent, src)
	default:
		return nil, fmt.Errorf("source %s: unknown type %q", src.Name, src.Type)
	}
}

// ErrOutsideContext is returned for paths that would leave the context dir.
var ErrOutsideContext = errors.New("path escapes the context directory")

// target maps a manifest path to a file inside ContextDir.
func (s *Syncer) target(dest string) (string, error) {
	p := filepath.Join(s.ContextDir, filepath.FromSlash(dest))
	rel, err := filepath.Rel(s.ContextDir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", dest, ErrOutsideContext)
	}
	return p, nil
}

func (s *Syncer) exists(dest string) bool {
	p, err := s.target(dest)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

func (s *Syncer) write(dest string, data []byte) error {
	p, err := s.target(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (s *Syncer) remove(dest string) error {
	p, err := s.target(dest)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
