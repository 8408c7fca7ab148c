package tools

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEngineSetForStage_Defaults(t *testing.T) {
	engines := EngineSetForStage(t.TempDir(), StagePO)
	if len(engines) != 2 || engines[0] != EngineClaude || engines[1] != EngineCodex {
		t.Fatalf("Expected default [claude codex] for po, got %v", engines)
	}
	engines = EngineSetForStage(t.TempDir(), StageDev)
	if len(engines) != 1 || engines[0] != EngineClaude {
		t.Fatalf("Expected default [claude] for dev, got %v", engines)
	}
}

func TestEngineSetForStage_FileOverride(t *testing.T) {
	workdir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workdir, ".bmad"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	cfg := "engines:\n  architect:\n    - codex\n    - claude\n"
	if err := os.WriteFile(filepath.Join(workdir, ".bmad", "engines.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	engines := EngineSetForStage(workdir, StageArchitect)
	if len(engines) != 2 || engines[0] != EngineCodex {
		t.Fatalf("Expected override [codex claude], got %v", engines)
	}
	// 未覆盖的阶段仍用默认
	engines = EngineSetForStage(workdir, StagePO)
	if len(engines) != 2 || engines[0] != EngineClaude {
		t.Fatalf("Expected default for po, got %v", engines)
	}
}

func TestEngineSetForStage_CorruptFileFallsBack(t *testing.T) {
	workdir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workdir, ".bmad"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workdir, ".bmad", "engines.yaml"), []byte("engines: [not: a: map"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	engines := EngineSetForStage(workdir, StagePO)
	if len(engines) != 2 || engines[0] != EngineClaude {
		t.Fatalf("Corrupt config must fall back to defaults, got %v", engines)
	}
}
