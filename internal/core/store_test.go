package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	st, err := NewSessionStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSessionStore failed: %v", err)
	}
	return st
}

func TestSessionStore_RecordRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	record := []byte(`{"session_id": "s1", "state": "generating"}`)
	if err := st.SaveSessionRecord(ctx, "s1", record); err != nil {
		t.Fatalf("SaveSessionRecord failed: %v", err)
	}

	got, err := st.LoadSessionRecord(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSessionRecord failed: %v", err)
	}
	if string(got) != string(record) {
		t.Fatalf("Record round trip mismatch")
	}

	// 覆盖保存后读到新版本
	updated := []byte(`{"session_id": "s1", "state": "clarifying"}`)
	if err := st.SaveSessionRecord(ctx, "s1", updated); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	got, _ = st.LoadSessionRecord(ctx, "s1")
	if string(got) != string(updated) {
		t.Fatalf("Overwrite not visible")
	}
}

func TestSessionStore_MissingRecord(t *testing.T) {
	st := newTestStore(t)
	_, err := st.LoadSessionRecord(context.Background(), "missing")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestSessionStore_RefFiles(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	relPath, err := st.WriteRef(ctx, "sess-1", "po_claude_result_1.txt", []byte("候选内容"))
	if err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}
	if relPath != filepath.Join(".bmad", "tmp", "sess-1", "po_claude_result_1.txt") {
		t.Fatalf("Unexpected ref path %q", relPath)
	}

	data, err := st.ReadRef(ctx, relPath)
	if err != nil {
		t.Fatalf("ReadRef failed: %v", err)
	}
	if string(data) != "候选内容" {
		t.Fatalf("Ref content mismatch: %q", data)
	}
}

func TestSessionStore_Artifacts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if st.ArtifactDirExists("demo-task") {
		t.Fatalf("Artifact dir must not exist yet")
	}

	relPath, err := st.WriteArtifact(ctx, "demo-task", "prd.md", []byte("# PRD"))
	if err != nil {
		t.Fatalf("WriteArtifact failed: %v", err)
	}
	if relPath != filepath.Join(".bmad", "output", "demo-task", "prd.md") {
		t.Fatalf("Unexpected artifact path %q", relPath)
	}
	if !st.ArtifactDirExists("demo-task") {
		t.Fatalf("Artifact dir must exist after write")
	}

	data, err := os.ReadFile(filepath.Join(st.Workdir(), relPath))
	if err != nil {
		t.Fatalf("Artifact not on disk: %v", err)
	}
	if string(data) != "# PRD" {
		t.Fatalf("Artifact content mismatch")
	}

	// 同名覆盖写（确认即保存，重复确认不报错）
	if _, err := st.WriteArtifact(ctx, "demo-task", "prd.md", []byte("# PRD v2")); err != nil {
		t.Fatalf("Artifact overwrite failed: %v", err)
	}
}

func TestSessionStore_TaskMappings(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	taken, err := st.TaskNameExists(ctx, "demo-task")
	if err != nil {
		t.Fatalf("TaskNameExists failed: %v", err)
	}
	if taken {
		t.Fatalf("Fresh store must have no mappings")
	}

	if err := st.InsertTaskMapping(ctx, &TaskMapping{
		SessionID: "s1", TaskName: "demo-task", Objective: "演示目标",
	}); err != nil {
		t.Fatalf("InsertTaskMapping failed: %v", err)
	}

	taken, err = st.TaskNameExists(ctx, "demo-task")
	if err != nil {
		t.Fatalf("TaskNameExists failed: %v", err)
	}
	if !taken {
		t.Fatalf("Inserted mapping not visible")
	}
}

func TestSessionStore_Events(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id1, err := st.AppendEvent(ctx, &WorkflowEvent{
		SessionID: "s1", Stage: "po", EventType: "start", Payload: "目标",
	})
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	id2, err := st.AppendEvent(ctx, &WorkflowEvent{
		SessionID: "s1", Stage: "po", EventType: "submit", Payload: `{"score": 92}`,
	})
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("Event ids must be monotonic: %d then %d", id1, id2)
	}
}

func TestGetDBForWorkdir_SingletonPerDir(t *testing.T) {
	dir := t.TempDir()
	a, err := GetDBForWorkdir(dir)
	if err != nil {
		t.Fatalf("GetDBForWorkdir failed: %v", err)
	}
	b, err := GetDBForWorkdir(dir)
	if err != nil {
		t.Fatalf("GetDBForWorkdir failed: %v", err)
	}
	if a != b {
		t.Fatalf("Same workdir must share one DatabaseManager")
	}

	if _, err := GetDBForWorkdir(filepath.Join(dir, "does-not-exist")); err == nil {
		t.Fatalf("Nonexistent workdir must be rejected")
	}
}
