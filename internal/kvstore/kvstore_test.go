package kvstore

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"go.uber.org/zap"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, "index.json", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	want := record{Name: "widget", Count: 3}
	if err := s.Put("agent-1:widget", want); err != nil {
		t.Fatalf("put: %v", err)
	}

	var got record
	ok, err := s.Get("agent-1:widget", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || got != want {
		t.Errorf("got %+v ok=%v, want %+v", got, ok, want)
	}
}

func TestGetUnknownKey(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	var out record
	ok, err := s.Get("nope", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("unknown key reported found")
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	if err := s.Put("k", record{Name: "persist", Count: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}

	reopened := openTestStore(t, dir)
	var got record
	ok, err := reopened.Get("k", &got)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if !ok || got.Name != "persist" {
		t.Errorf("got %+v ok=%v after reopen", got, ok)
	}
}

func TestCorruptIndexStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt index: %v", err)
	}

	s := openTestStore(t, dir)
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
	if err := s.Put("k", record{Name: "fresh"}); err != nil {
		t.Fatalf("put after corrupt index: %v", err)
	}
}

func TestKeysPrefix(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	for _, k := range []string{"agent-1:a", "agent-1:b", "agent-2:a"} {
		if err := s.Put(k, record{Name: k}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	keys := s.Keys("agent-1:")
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "agent-1:a" || keys[1] != "agent-1:b" {
		t.Errorf("keys = %v", keys)
	}
	if s.Len() != 3 {
		t.Errorf("len = %d, want 3", s.Len())
	}
}

func TestOverwriteValue(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	s.Put("k", record{Count: 1})
	s.Put("k", record{Count: 2})

	var got record
	ok, _ := s.Get("k", &got)
	if !ok || got.Count != 2 {
		t.Errorf("got %+v, want count 2", got)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}
