package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	logx "remindbot/pkg/logx"
)

// fileStore writes the snapshot to path as
//
//	{"<owner id>": [["<fire time>", "<text>"], ...]}
//
// and appends audit entries as JSON lines to <path without ext>.audit.jsonl.
// Only fire time and text survive a round trip.
type fileStore struct {
	log  logx.Logger
	path string

	mu    sync.Mutex
	audit *os.File
}

func openFile(path string, log logx.Logger) (Store, error) {
	if path == "" {
		return nil, errors.New("storage: file driver needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	auditPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".audit.jsonl"
	f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file storage opened", logx.String("snapshot", path), logx.String("audit", auditPath))
	return &fileStore{log: log, path: path, audit: f}, nil
}

func (s *fileStore) SaveReminders(_ context.Context, snap Snapshot) error {
	b, err := marshalPairs(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// rename keeps readers from seeing a half-written file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) LoadReminders(context.Context) (Snapshot, error) {
	s.mu.Lock()
	b, err := os.ReadFile(s.path)
	s.mu.Unlock()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Snapshot{}, nil
	case err != nil:
		return nil, err
	}
	snap, err := unmarshalPairs(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return snap, nil
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return fs.ErrClosed
	}
	_, err = s.audit.Write(append(line, '\n'))
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return nil
	}
	f := s.audit
	s.audit = nil
	return f.Close()
}

func marshalPairs(snap Snapshot) ([]byte, error) {
	doc := make(map[string][][2]string, len(snap))
	for owner, rs := range snap {
		if len(rs) == 0 {
			continue
		}
		pairs := make([][2]string, len(rs))
		for i, r := range rs {
			pairs[i] = [2]string{FormatTimestamp(r.FireAt), r.Text}
		}
		doc[strconv.FormatInt(owner, 10)] = pairs
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalPairs(b []byte) (Snapshot, error) {
	snap := Snapshot{}
	if len(bytes.TrimSpace(b)) == 0 {
		return snap, nil
	}
	var doc map[string][][]string
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	for key, pairs := range doc {
		owner, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("owner key %q is not a user id", key)
		}
		for i, p := range pairs {
			if len(p) != 2 {
				return nil, fmt.Errorf("owner %d item %d: want [time, text], got %d values", owner, i, len(p))
			}
			at, err := ParseTimestamp(p[0])
			if err != nil {
				return nil, fmt.Errorf("owner %d item %d: %w", owner, i, err)
			}
			snap[owner] = append(snap[owner], ReminderRecord{FireAt: at, Text: p[1]})
		}
	}
	return snap, nil
}
