package sources

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"ftmgraph/internal/etl"
)

// ── FtM File Source ─────────────────────────────────────────
// Streams entities from a newline-delimited JSON file, one entity
// document per line. Files ending in .gz are decompressed.

type ftmFileSource struct{}

func init() { etl.RegisterSource(&ftmFileSource{}) }

func (s *ftmFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "ftm_file",
		Label: "Entity File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Path to a newline-delimited entity JSON file (.json, .ndjson or .gz)"},
		},
	}
}

func (s *ftmFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Summary, error) {
	return etl.Sample(ctx, s, cfg, 100)
}

func (s *ftmFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		r, err := openEntityFile(cfg.String("filePath", ""))
		if err != nil {
			errCh <- err
			return
		}
		defer r.Close()

		if err := streamLines(ctx, r, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func openEntityFile(path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return &gzipFile{Reader: zr, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	zerr := g.Reader.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return zerr
}
