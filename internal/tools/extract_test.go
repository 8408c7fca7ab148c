package tools

import (
	"strings"
	"testing"
)

func TestExtractScore_StructuredField(t *testing.T) {
	text := `{"prd_draft": "...", "quality_score": 92}`
	if got := ExtractScore(text); got != 92 {
		t.Fatalf("Expected 92, got %d", got)
	}
}

func TestExtractScore_LastOccurrenceWins(t *testing.T) {
	// 草稿正文里引用过一次旧分数，末尾自评才算数
	text := `前一版 "quality_score": 70 已过时。
修订后自评：
{"quality_score": 88}`
	if got := ExtractScore(text); got != 88 {
		t.Fatalf("Expected last occurrence 88, got %d", got)
	}
}

func TestExtractScore_TextLabel(t *testing.T) {
	text := "文档结尾标注 quality score: 91/100，无结构化字段"
	if got := ExtractScore(text); got != 91 {
		t.Fatalf("Expected 91 from text label, got %d", got)
	}
}

func TestExtractScore_OutOfRangeFallsThrough(t *testing.T) {
	// 超出 0-100 的字段值无效，落到下一级提取
	text := `"quality_score": 250
Quality Score: 77/100`
	if got := ExtractScore(text); got != 77 {
		t.Fatalf("Expected fallthrough to 77, got %d", got)
	}
}

func TestExtractScore_HeuristicNeverPasses(t *testing.T) {
	// 六章节 + 量化指标 + 验收标准全齐，启发式也只能到 85
	text := strings.Join([]string{
		"# Executive Summary",
		"# Business Goals",
		"# User Stories",
		"# Functional Requirements",
		"# Technical Requirements",
		"# Success Metrics",
		"响应时间 < 200 ms，可用性 99.9%",
		"## Acceptance Criteria",
	}, "\n")
	got := ExtractScore(text)
	if got != 85 {
		t.Fatalf("Expected heuristic cap 85, got %d", got)
	}
	if got >= passingScore {
		t.Fatalf("Heuristic score %d must stay below passing threshold", got)
	}
}

func TestExtractScore_HeuristicBase(t *testing.T) {
	if got := ExtractScore("随便一段没有任何章节的文字"); got != 60 {
		t.Fatalf("Expected base heuristic 60, got %d", got)
	}
}

func TestExtractQuestions_FromMalformedJSON(t *testing.T) {
	// 整段不是合法 JSON，questions 数组本身合法即可提取
	text := `说明文字 {"questions": [
		{"id": "q1", "question": "目标用户是谁？", "context": "影响权限模型"},
		{"question": "是否需要 SSO？"}
	], 后面被截断`
	qs := ExtractQuestions(text)
	if len(qs) != 2 {
		t.Fatalf("Expected 2 questions, got %d", len(qs))
	}
	if qs[0].ID != "q1" || qs[0].Context != "影响权限模型" {
		t.Errorf("First question parsed wrong: %+v", qs[0])
	}
	// 缺失 id 按位置补 q2
	if qs[1].ID != "q2" {
		t.Errorf("Expected synthesized id q2, got %q", qs[1].ID)
	}
}

func TestExtractQuestions_SkippedBlankDoesNotBreakNumbering(t *testing.T) {
	// 空白问题被丢弃且不占号，补位 id 保持连续
	text := `{"questions": [
		{"question": "第一个问题？"},
		{"question": "   "},
		{"question": "第二个问题？"}
	]}`
	qs := ExtractQuestions(text)
	if len(qs) != 2 {
		t.Fatalf("Expected 2 questions, got %d", len(qs))
	}
	if qs[0].ID != "q1" || qs[1].ID != "q2" {
		t.Fatalf("Expected contiguous ids q1/q2, got %q/%q", qs[0].ID, qs[1].ID)
	}
}

func TestExtractQuestions_Absent(t *testing.T) {
	if qs := ExtractQuestions("完整文档，没有问题清单"); len(qs) != 0 {
		t.Fatalf("Expected no questions, got %d", len(qs))
	}
}

func TestMergeQuestions_CaseInsensitiveDedup(t *testing.T) {
	a := []Question{{ID: "q1", Question: "What is X?"}}
	b := []Question{
		{ID: "qa", Question: "what is x?"},
		{ID: "qb", Question: "What is Y?"},
	}
	merged := MergeQuestions(a, b)
	if len(merged) != 2 {
		t.Fatalf("Expected 2 after dedup, got %d", len(merged))
	}
	if merged[0].ID != "q1" || merged[1].ID != "qb" {
		t.Errorf("Merge order wrong: %+v", merged)
	}
}

func TestMergeQuestions_RekeysCollidingIDs(t *testing.T) {
	// 两个引擎各自从 q1 开始编号；合并后 id 必须唯一，
	// 否则按 id 寻址的回答映射会产生歧义
	a := []Question{
		{ID: "q1", Question: "目标用户是谁？"},
		{ID: "q2", Question: "部署环境？"},
	}
	b := []Question{
		{ID: "q1", Question: "预算上限是多少？"},
		{Question: "是否需要审计日志？"},
	}
	merged := MergeQuestions(a, b)
	if len(merged) != 4 {
		t.Fatalf("Expected 4 questions, got %d", len(merged))
	}
	seen := make(map[string]bool)
	for _, q := range merged {
		if q.ID == "" || seen[q.ID] {
			t.Fatalf("Duplicate or empty id %q in merge result: %+v", q.ID, merged)
		}
		seen[q.ID] = true
	}
	// 保留侧原样，追加侧冲突条目改用最小空闲号
	if merged[0].ID != "q1" || merged[1].ID != "q2" {
		t.Fatalf("First list must keep its ids: %+v", merged[:2])
	}
	if merged[2].Question != "预算上限是多少？" || merged[2].ID != "q3" {
		t.Fatalf("Colliding id must be re-keyed to q3, got %+v", merged[2])
	}
}

func TestMergeGaps_OrderedUnion(t *testing.T) {
	merged := MergeGaps([]string{"缺少章节 A", "缺少章节 B"}, []string{"缺少章节 b", "缺少章节 C"})
	if len(merged) != 3 {
		t.Fatalf("Expected 3 gaps, got %d: %v", len(merged), merged)
	}
	if merged[2] != "缺少章节 C" {
		t.Errorf("Union order wrong: %v", merged)
	}
}

func TestExtractDraft_WholeJSON(t *testing.T) {
	text := `{"prd_draft": "# PRD\n正文内容", "quality_score": 92}`
	got := ExtractDraft(StagePO, text)
	if got != "# PRD\n正文内容" {
		t.Fatalf("Expected extracted draft, got %q", got)
	}
}

func TestExtractDraft_FencedBlock(t *testing.T) {
	text := "说明\n```json\n{\"architecture_draft\": \"# 架构\\n组件划分\"}\n```\n结尾"
	got := ExtractDraft(StageArchitect, text)
	if got != "# 架构\n组件划分" {
		t.Fatalf("Expected fenced draft, got %q", got)
	}
}

func TestExtractDraft_FieldRegexFallback(t *testing.T) {
	// 对象整体残缺，靠字段正则截取并还原转义
	text := `前导噪声 "stories_draft": "Story 1\n\t- 验收标准" 后续被截断`
	got := ExtractDraft(StageSM, text)
	if got != "Story 1\n\t- 验收标准" {
		t.Fatalf("Expected unescaped draft, got %q", got)
	}
}

func TestExtractDraft_Idempotent(t *testing.T) {
	text := `{"prd_draft": "# PRD\n\n## Executive Summary\n纯 markdown 文档"}`
	once := ExtractDraft(StagePO, text)
	twice := ExtractDraft(StagePO, once)
	if once != twice {
		t.Fatalf("ExtractDraft not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestExtractDraft_PlainTextPassthrough(t *testing.T) {
	text := "# 实现说明\n\n直接就是文档"
	if got := ExtractDraft(StageDev, text); got != text {
		t.Fatalf("Plain text must pass through unchanged, got %q", got)
	}
}
