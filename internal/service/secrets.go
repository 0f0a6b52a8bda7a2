package service

import (
	"fmt"
	"maps"

	"github.com/google/uuid"

	"ftmgraph/internal/etl"
)

// ── Source secrets ─────────────────────────────────────────

const (
	passwordField    = "password"
	passwordRefField = "passwordRef"
)

// stashPassword moves a source password into the secret store and
// returns a copy of cfg that references it. Without a store cfg is
// returned unchanged.
func (s *ExportService) stashPassword(cfg etl.SourceConfig) (etl.SourceConfig, error) {
	pw, _ := cfg[passwordField].(string)
	if s.opts.Secrets == nil || pw == "" {
		return cfg, nil
	}
	ref := "source:" + uuid.New().String()
	if err := s.opts.Secrets.Set(ref, []byte(pw)); err != nil {
		return nil, fmt.Errorf("store source password: %w", err)
	}
	out := maps.Clone(cfg)
	delete(out, passwordField)
	out[passwordRefField] = ref
	return out, nil
}

// resolvePassword returns a copy of cfg with the referenced password
// filled in.
func (s *ExportService) resolvePassword(cfg etl.SourceConfig) (etl.SourceConfig, error) {
	ref, _ := cfg[passwordRefField].(string)
	if ref == "" {
		return cfg, nil
	}
	if s.opts.Secrets == nil {
		return nil, fmt.Errorf("source password %s: no secret store", ref)
	}
	pw, err := s.opts.Secrets.Get(ref)
	if err != nil {
		return nil, fmt.Errorf("source password %s: %w", ref, err)
	}
	out := maps.Clone(cfg)
	delete(out, passwordRefField)
	out[passwordField] = string(pw)
	return out, nil
}

func (s *ExportService) dropPassword(cfg etl.SourceConfig) {
	ref, _ := cfg[passwordRefField].(string)
	if ref == "" || s.opts.Secrets == nil {
		return
	}
	if err := s.opts.Secrets.Delete(ref); err != nil {
		s.log.Warn("delete source password", "ref", ref, "error", err)
	}
}
