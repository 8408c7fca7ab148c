package tools

import (
	"strings"
	"testing"
)

func TestMergeCandidates_OnlyOnePasses(t *testing.T) {
	// 唯一过线方胜出，即便对方分更高也不行（不存在这种组合）
	got := MergeCandidates("claude", 93, "A", "codex", 85, "B")
	if got.Winner != "claude" || got.Score != 93 {
		t.Fatalf("Expected claude/93, got %s/%d", got.Winner, got.Score)
	}

	got = MergeCandidates("claude", 82, "A", "codex", 90, "B")
	if got.Winner != "codex" || got.Score != 90 {
		t.Fatalf("Expected codex/90, got %s/%d", got.Winner, got.Score)
	}
}

func TestMergeCandidates_BothPassHigherWins(t *testing.T) {
	got := MergeCandidates("claude", 91, "A", "codex", 95, "B")
	if got.Winner != "codex" || got.Score != 95 || got.Text != "B" {
		t.Fatalf("Expected codex/95/B, got %+v", got)
	}
}

func TestMergeCandidates_TieGoesToA(t *testing.T) {
	got := MergeCandidates("claude", 92, "A", "codex", 92, "B")
	if got.Winner != "claude" || got.Text != "A" {
		t.Fatalf("Tie must go to first candidate, got %+v", got)
	}

	got = MergeCandidates("claude", 70, "A", "codex", 70, "B")
	if got.Winner != "claude" {
		t.Fatalf("Sub-threshold tie must also go to first candidate, got %+v", got)
	}
}

func TestMergeCandidates_BothFail(t *testing.T) {
	got := MergeCandidates("claude", 72, "A", "codex", 85, "B")
	if got.Winner != "codex" || got.Score != 85 {
		t.Fatalf("Expected codex/85, got %s/%d", got.Winner, got.Score)
	}
	if got.Score >= passingScore {
		t.Fatalf("Both-fail merge must not produce a passing score")
	}
}

func TestMergeCandidates_SwapInvariance(t *testing.T) {
	// 交换两侧只应改变胜者标签的来源位置，不改变胜出文本与得分
	ab := MergeCandidates("claude", 72, "low", "codex", 85, "high")
	ba := MergeCandidates("claude", 85, "high", "codex", 72, "low")
	if ab.Text != ba.Text || ab.Score != ba.Score {
		t.Fatalf("Swap changed outcome: %+v vs %+v", ab, ba)
	}
}

func TestAnalyzeGaps_MissingSections(t *testing.T) {
	text := "# Executive Summary\n只有一个章节，没有指标"
	gaps := AnalyzeGaps(text, 72)

	joined := strings.Join(gaps, "\n")
	if strings.Contains(joined, "Executive Summary") {
		t.Errorf("Present section reported as missing: %v", gaps)
	}
	for _, want := range []string{"User Stories", "Success Metrics", "量化指标", "验收标准"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected gap mentioning %q, got %v", want, gaps)
		}
	}
}

func TestAnalyzeGaps_FallbackWhenComplete(t *testing.T) {
	text := strings.Join([]string{
		"# Executive Summary", "# Business Goals", "# User Stories",
		"# Functional Requirements", "# Non-Functional Requirements",
		"# Technical Requirements", "# Success Metrics",
		"P99 < 200 ms", "Acceptance Criteria", "依赖与版本", "错误处理", "里程碑",
	}, "\n")
	gaps := AnalyzeGaps(text, 86)
	if len(gaps) != 2 {
		t.Fatalf("Expected generic 2-line fallback, got %v", gaps)
	}
	if !strings.Contains(gaps[0], "86") || !strings.Contains(gaps[0], "4") {
		t.Errorf("Fallback must state current score and remaining points: %q", gaps[0])
	}
}
