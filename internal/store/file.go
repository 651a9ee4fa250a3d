package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "aircheck/pkg/logx"
)

// fileStore is the dependency-free default backend: one JSON document mapping
// job id -> record, rewritten atomically (tmp + rename) on every save.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) SaveJobs(ctx context.Context, recs []Record) error {
	_ = ctx
	m := make(map[string]Record, len(recs))
	for _, r := range recs {
		if strings.TrimSpace(r.ID) == "" {
			continue
		}
		m[r.ID] = r
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) LoadJobs(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	b, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("schedule snapshot unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return nil, nil
	}

	var m map[string]Record
	if err := json.Unmarshal(b, &m); err != nil {
		s.log.Warn("schedule snapshot corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		return nil, nil
	}

	recs := make([]Record, 0, len(m))
	for id, r := range m {
		if r.ID == "" {
			r.ID = id
		}
		recs = append(recs, r)
	}
	// Stable order for callers and logs.
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}
