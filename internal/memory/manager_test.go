package memory

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestManager(t *testing.T, sessionID, storageRoot string) *Manager {
	t.Helper()
	sessionDir := filepath.Join(storageRoot, "sessions", sessionID)
	m, err := NewManager(sessionID, sessionDir, storageRoot, 100, 85.0, zap.NewNop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestStoreRetrieveAllTiers(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())

	for _, tier := range []Tier{TierEphemeral, TierWorking, TierShared, TierLongTerm} {
		in := map[string]string{"tier": string(tier)}
		if !m.Store("agent-1", "k", in, tier, nil) {
			t.Fatalf("store to %s failed", tier)
		}
		var out map[string]string
		if !m.RetrieveInto("agent-1", "k", tier, &out) {
			t.Fatalf("retrieve from %s failed", tier)
		}
		if out["tier"] != string(tier) {
			t.Errorf("tier %s: got %v", tier, out)
		}
	}
}

func TestUnknownTierRejected(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	if m.Store("agent-1", "k", "v", Tier("bogus"), nil) {
		t.Error("store to unknown tier should fail")
	}
}

func TestUnserializableValueRejected(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	if m.Store("agent-1", "k", make(chan int), TierWorking, nil) {
		t.Error("store of unserializable value should fail")
	}
	if _, ok := m.Retrieve("agent-1", "k", TierWorking); ok {
		t.Error("failed store must leave no entry behind")
	}
}

func TestAgentIsolationInPrivateTiers(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	m.Store("agent-1", "secret", "mine", TierEphemeral, nil)
	m.Store("agent-1", "draft", "wip", TierWorking, nil)

	if _, ok := m.Retrieve("agent-2", "secret", TierEphemeral); ok {
		t.Error("ephemeral entry visible to another agent")
	}
	if _, ok := m.Retrieve("agent-2", "draft", TierWorking); ok {
		t.Error("working entry visible to another agent")
	}
}

func TestSessionIsolation(t *testing.T) {
	root := t.TempDir()
	m1 := newTestManager(t, "s1", root)
	m2 := newTestManager(t, "s2", root)

	m1.Store("agent-1", "k", "session-one", TierEphemeral, nil)
	m1.Store("agent-1", "k", "session-one", TierShared, nil)

	if _, ok := m2.Retrieve("agent-1", "k", TierEphemeral); ok {
		t.Error("ephemeral entry leaked across sessions")
	}
	if _, ok := m2.Retrieve("agent-1", "k", TierShared); ok {
		t.Error("shared entry leaked across sessions")
	}

	// Long-term memory is deliberately cross-session.
	m1.Store("agent-1", "learned", "fact", TierLongTerm, nil)
	var out string
	if !m2.RetrieveInto("agent-1", "learned", TierLongTerm, &out) || out != "fact" {
		t.Errorf("long-term entry not visible across sessions, got %q", out)
	}
}

func TestSharedTierVisibleToAll(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	if !m.ShareToAll("agent-1", "announcement", "hello") {
		t.Fatal("share to all failed")
	}
	var out string
	if !m.RetrieveInto("agent-2", "announcement", TierShared, &out) || out != "hello" {
		t.Errorf("shared value not visible, got %q", out)
	}
}

func TestSharedTierLastWriterWins(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	m.ShareToAll("agent-1", "k", "first")

	// Prime agent-1's read path so a stale cache line would show up.
	var out string
	m.RetrieveInto("agent-1", "k", TierShared, &out)

	m.ShareToAll("agent-2", "k", "second")
	if !m.RetrieveInto("agent-1", "k", TierShared, &out) || out != "second" {
		t.Errorf("got %q after overwrite, want second", out)
	}
}

func TestShareToAgent(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	m.Store("agent-1", "handoff", map[string]int{"n": 7}, TierEphemeral, nil)

	if !m.ShareToAgent("agent-1", "agent-2", "handoff") {
		t.Fatal("share to agent failed")
	}
	var out map[string]int
	if !m.RetrieveInto("agent-2", "handoff", TierEphemeral, &out) || out["n"] != 7 {
		t.Errorf("got %v", out)
	}

	if m.ShareToAgent("agent-1", "agent-2", "absent") {
		t.Error("sharing a missing key should fail")
	}
}

func TestLongTermSurvivesNewManager(t *testing.T) {
	root := t.TempDir()
	m1 := newTestManager(t, "s1", root)
	m1.Store("agent-1", "lesson", "remember", TierLongTerm, nil)

	m2 := newTestManager(t, "s2", root)
	var out string
	if !m2.RetrieveInto("agent-1", "lesson", TierLongTerm, &out) || out != "remember" {
		t.Errorf("got %q from fresh manager", out)
	}
}

func TestClearSessionMemory(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	m.Store("agent-1", "eph", 1, TierEphemeral, nil)
	m.Store("agent-1", "work", 2, TierWorking, nil)
	m.Store("agent-1", "long", 3, TierLongTerm, nil)

	m.ClearSessionMemory()

	if _, ok := m.Retrieve("agent-1", "eph", TierEphemeral); ok {
		t.Error("ephemeral survived clear")
	}
	if _, ok := m.Retrieve("agent-1", "work", TierWorking); ok {
		t.Error("working survived clear")
	}
	var out int
	if !m.RetrieveInto("agent-1", "long", TierLongTerm, &out) || out != 3 {
		t.Error("long-term must survive session clear")
	}
}

func TestClearWorkingMemory(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	m.Store("agent-1", "scratch", 1, TierWorking, nil)
	m.Store("agent-2", "scratch", 2, TierWorking, nil)
	// Retrieval backfills the cache; clear must not resurrect via cache.
	m.Retrieve("agent-1", "scratch", TierWorking)

	m.ClearWorkingMemory("agent-1")

	if _, ok := m.Retrieve("agent-1", "scratch", TierWorking); ok {
		t.Error("agent-1 working memory survived clear")
	}
	if _, ok := m.Retrieve("agent-2", "scratch", TierWorking); !ok {
		t.Error("agent-2 working memory should be untouched")
	}
}

func TestEphemeralJournalWritten(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, "s1", root)
	m.Store("agent-1", "note", "journaled", TierEphemeral, nil)

	path := filepath.Join(root, "sessions", "s1", "memory", "agent-1", "note.json")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("journal file missing: %v", err)
	}
}

func TestAgentContext(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	m.Store("agent-1", "e", 1, TierEphemeral, nil)
	m.Store("agent-1", "w", 2, TierWorking, nil)
	m.ShareToAll("agent-2", "s", 3)
	m.Store("agent-1", "l", 4, TierLongTerm, nil)
	m.Store("agent-2", "other", 5, TierLongTerm, nil)

	ctx := m.AgentContext("agent-1")
	if len(ctx[TierEphemeral]) != 1 || len(ctx[TierWorking]) != 1 {
		t.Errorf("private tiers = %d/%d entries", len(ctx[TierEphemeral]), len(ctx[TierWorking]))
	}
	if len(ctx[TierShared]) != 1 {
		t.Errorf("shared tier = %d entries, want 1", len(ctx[TierShared]))
	}
	if len(ctx[TierLongTerm]) != 1 {
		t.Errorf("long-term tier = %d entries, want only agent-1's", len(ctx[TierLongTerm]))
	}
	if _, ok := ctx[TierLongTerm]["l"]; !ok {
		t.Error("long-term key should be stripped of the agent prefix")
	}
}

func TestStats(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	m.Store("agent-1", "a", 1, TierEphemeral, nil)
	m.Store("agent-2", "b", 2, TierEphemeral, nil)
	m.Store("agent-1", "c", 3, TierWorking, nil)
	m.ShareToAll("agent-1", "d", 4)

	st := m.Stats()
	if st.EphemeralEntries != 2 || st.WorkingEntries != 1 || st.SharedEntries != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.CacheSize == 0 {
		t.Error("stores should populate the cache")
	}
}

func TestCheckpointRestore(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	m.Store("agent-1", "eph", "before", TierEphemeral, nil)
	m.ShareToAll("agent-1", "shared", "before")

	id, err := m.Checkpoint("pre_retry")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	m.ClearSessionMemory()
	m.ShareToAll("agent-1", "shared", "after")

	if err := m.RestoreCheckpoint(id); err != nil {
		t.Fatalf("restore: %v", err)
	}

	var out string
	if !m.RetrieveInto("agent-1", "eph", TierEphemeral, &out) || out != "before" {
		t.Errorf("ephemeral after restore = %q, want before", out)
	}
	if !m.RetrieveInto("agent-1", "shared", TierShared, &out) || out != "before" {
		t.Errorf("shared after restore = %q, want before", out)
	}
}

func TestRestoreUnknownCheckpoint(t *testing.T) {
	m := newTestManager(t, "s1", t.TempDir())
	if err := m.RestoreCheckpoint("no_such_checkpoint"); err == nil {
		t.Error("expected error for unknown checkpoint")
	}
}
