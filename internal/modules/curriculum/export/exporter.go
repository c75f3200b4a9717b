package export

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/quality"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

const (
	DefaultVersion = "1.0.0"
	ManifestName   = "manifest.json"
)

var ErrNotExportable = errors.New("week is not exportable")

// NotExportableError reports a unit whose latest verdict blocks export.
type NotExportableError struct {
	Unit    int
	Verdict curriculum.Verdict
}

func (e *NotExportableError) Error() string {
	if e.Verdict == "" {
		return fmt.Sprintf("week %d has no validation report; run validate first or export with force", e.Unit)
	}
	return fmt.Sprintf("week %d verdict is %s; export with force to override", e.Unit, e.Verdict)
}

func (e *NotExportableError) Is(target error) bool { return target == ErrNotExportable }

type ManifestFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

type Manifest struct {
	Week           int            `json:"week"`
	ExportDate     string         `json:"export_date"`
	Version        string         `json:"version"`
	Files          []ManifestFile `json:"files"`
	FileCount      int            `json:"file_count"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
}

type Options struct {
	OutDir  string
	Version string
	// Workers bounds concurrent reads while hashing.
	Workers int
	Now     func() time.Time
}

type Result struct {
	ZipPath  string
	Manifest *Manifest
}

type Exporter struct {
	log   *logger.Logger
	store artifacts.Store
	opts  Options
}

func New(log *logger.Logger, store artifacts.Store, opts Options) *Exporter {
	if opts.OutDir == "" {
		opts.OutDir = "exports"
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Exporter{log: log.With("service", "Exporter"), store: store, opts: opts}
}

type entry struct {
	key  curriculum.ArtifactKey
	data []byte
	file ManifestFile
}

// Export packages unit into WeekNN.zip with a manifest of per-file hashes.
// Units whose stored verdict is not ok or warn are refused unless force.
func (e *Exporter) Export(ctx context.Context, unit int, force bool) (*Result, error) {
	if !force {
		report, err := quality.LoadReport(ctx, e.store, unit)
		switch {
		case artifacts.IsNotFound(err):
			return nil, &NotExportableError{Unit: unit}
		case err != nil:
			return nil, fmt.Errorf("read validation report: %w", err)
		case !report.Verdict.Passing():
			return nil, &NotExportableError{Unit: unit, Verdict: report.Verdict}
		}
	}

	keys, err := e.store.List(ctx, unit)
	if err != nil {
		return nil, fmt.Errorf("list week %d: %w", unit, err)
	}
	kept := keys[:0]
	for _, k := range keys {
		if !artifacts.IsRejected(k) {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("week %d has no artifacts: %w", unit, apperr.ErrNotFound)
	}

	entries, err := e.collect(ctx, kept)
	if err != nil {
		return nil, err
	}

	now := e.opts.Now().UTC()
	m := &Manifest{
		Week:       unit,
		ExportDate: now.Format(time.RFC3339),
		Version:    e.opts.Version,
		Files:      make([]ManifestFile, 0, len(entries)),
	}
	for _, en := range entries {
		m.Files = append(m.Files, en.file)
		m.TotalSizeBytes += en.file.SizeBytes
	}
	m.FileCount = len(m.Files)

	path, err := e.writeZip(unit, entries, m, now)
	if err != nil {
		return nil, err
	}
	e.log.Info("Week exported", "week", unit, "zip", path, "files", m.FileCount, "bytes", m.TotalSizeBytes, "forced", force)
	return &Result{ZipPath: path, Manifest: m}, nil
}

// ExportAll exports every week in 1..total whose stored verdict is ok or warn.
// Weeks without a passing verdict are skipped; any other error stops the pass.
func (e *Exporter) ExportAll(ctx context.Context, total int) ([]*Result, error) {
	out := []*Result{}
	skipped := 0
	for unit := 1; unit <= total; unit++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := e.Export(ctx, unit, false)
		if errors.Is(err, ErrNotExportable) {
			skipped++
			continue
		}
		if err != nil {
			return out, fmt.Errorf("export week %d: %w", unit, err)
		}
		out = append(out, res)
	}
	e.log.Info("Export pass finished", "exported", len(out), "skipped", skipped)
	return out, nil
}

// collect reads and hashes every key concurrently; order follows keys.
func (e *Exporter) collect(ctx context.Context, keys []curriculum.ArtifactKey) ([]entry, error) {
	entries := make([]entry, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	prefix := curriculum.UnitDir(keys[0].Unit) + "/"
	for i, k := range keys {
		g.Go(func() error {
			b, err := e.store.Get(gctx, k)
			if err != nil {
				return fmt.Errorf("read %s: %w", k, err)
			}
			sum := sha256.Sum256(b)
			entries[i] = entry{
				key:  k,
				data: b,
				file: ManifestFile{
					Path:      strings.TrimPrefix(k.Path(), prefix),
					SizeBytes: int64(len(b)),
					SHA256:    hex.EncodeToString(sum[:]),
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (e *Exporter) writeZip(unit int, entries []entry, m *Manifest, now time.Time) (string, error) {
	if err := os.MkdirAll(e.opts.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	final := filepath.Join(e.opts.OutDir, curriculum.UnitDir(unit)+".zip")
	tmp, err := os.CreateTemp(e.opts.OutDir, ".export-*.zip")
	if err != nil {
		return "", fmt.Errorf("create zip: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw := zip.NewWriter(tmp)
	add := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	dir := curriculum.UnitDir(unit)
	for _, en := range entries {
		if err := add(dir+"/"+en.file.Path, en.data); err != nil {
			tmp.Close()
			return "", fmt.Errorf("zip %s: %w", en.key, err)
		}
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := add(dir+"/"+ManifestName, manifest); err != nil {
		tmp.Close()
		return "", fmt.Errorf("zip manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("finish zip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close zip: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("move zip into place: %w", err)
	}
	return final, nil
}

// ReadManifest extracts the manifest from an exported zip.
func ReadManifest(zipPath string) (*Manifest, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	for _, f := range r.File {
		if filepath.Base(f.Name) != ManifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		var m Manifest
		if err := json.NewDecoder(rc).Decode(&m); err != nil {
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("%s: no %s: %w", zipPath, ManifestName, apperr.ErrNotFound)
}
