package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ========== 评分提取 ==========
// 提取失败从不报错：每一级都有安全默认值，状态机永远拿得到可用分数。

var (
	reQualityField = regexp.MustCompile(`"quality_score"\s*:\s*(-?\d+)`)
	reQualityLabel = regexp.MustCompile(`(?i)quality\s*score\s*[:：]\s*(\d+)\s*/\s*100`)
	// 量化指标：百分比 / 毫秒上限 / 数值比较
	reMetric = regexp.MustCompile(`\d+(?:\.\d+)?\s*%|\d+\s*(?:ms|毫秒)|[<>]=?\s*\d+`)
)

// requiredSections 评分启发式检查的六个必备章节
var requiredSections = []string{
	"Executive Summary",
	"Business Goals",
	"User Stories",
	"Functional Requirements",
	"Technical Requirements",
	"Success Metrics",
}

// heuristicScoreCap 启发式得分上限，刻意低于 90 分晋级门槛：
// 没有显式自评分的输出永远无法靠启发式通过门控。
const heuristicScoreCap = 85

// ExtractScore 从生成文本提取 0-100 质量分，严格按优先级：
//  1. 结构化字段 "quality_score"（多次出现取最后一次，末尾自评才是权威值）
//  2. 文本标注 "Quality Score: n/100"（大小写不敏感）
//  3. 章节完整度启发式（上限 85）
func ExtractScore(text string) int {
	if ms := reQualityField.FindAllStringSubmatch(text, -1); len(ms) > 0 {
		if n, err := strconv.Atoi(ms[len(ms)-1][1]); err == nil && n >= 0 && n <= 100 {
			return n
		}
	}

	if m := reQualityLabel.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 0 && n <= 100 {
			return n
		}
	}

	return heuristicScore(text)
}

func heuristicScore(text string) int {
	score := 60
	for _, section := range requiredSections {
		if strings.Contains(text, section) {
			score += 5
		}
	}
	if reMetric.MatchString(text) {
		score += 5
	}
	if strings.Contains(text, "Acceptance Criteria") || strings.Contains(text, "验收标准") {
		score += 5
	}
	if score > heuristicScoreCap {
		score = heuristicScoreCap
	}
	return score
}

// ========== 澄清问题 / 缺口提取 ==========

// ExtractQuestions 从文本中定位 "questions" JSON 数组并单独解析。
// 不要求整段文本是合法 JSON；任何解析失败都退化为空列表。
func ExtractQuestions(text string) []Question {
	raw, ok := extractJSONArray(text, "questions")
	if !ok {
		return nil
	}

	var items []struct {
		ID       string `json:"id"`
		Question string `json:"question"`
		Context  string `json:"context"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}

	questions := make([]Question, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Question) == "" {
			continue
		}
		q := Question{
			ID:       item.ID,
			Question: item.Question,
			Context:  item.Context,
		}
		// 补位 id 按保留问题数连续编号，跳过的空白条目不占号
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", len(questions)+1)
		}
		questions = append(questions, q)
	}
	return questions
}

// ExtractGaps 从文本中定位 "gaps" JSON 数组；失败退化为空列表
func ExtractGaps(text string) []string {
	raw, ok := extractJSONArray(text, "gaps")
	if !ok {
		return nil
	}

	var gaps []string
	if err := json.Unmarshal([]byte(raw), &gaps); err != nil {
		return nil
	}

	out := make([]string, 0, len(gaps))
	for _, g := range gaps {
		if strings.TrimSpace(g) != "" {
			out = append(out, g)
		}
	}
	return out
}

// extractJSONArray 以字段名为锚点，从任意文本中括号配平截取 JSON 数组
func extractJSONArray(text, field string) (string, bool) {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*\[`)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", false
	}

	start := strings.LastIndex(text[:loc[1]], "[")
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// MergeQuestions 合并两份问题列表：第一份原样保留，第二份按
// 问题文本（大小写折叠）去重后追加。追加侧 id 与已有 id 冲突时
// 重新编号，回答映射按 id 寻址，合并结果里 id 必须唯一。
func MergeQuestions(a, b []Question) []Question {
	merged := append([]Question(nil), a...)
	seen := make(map[string]bool, len(a))
	usedIDs := make(map[string]bool, len(a)+len(b))
	for _, q := range a {
		seen[normalizeQuestionText(q.Question)] = true
		usedIDs[q.ID] = true
	}
	for _, q := range b {
		key := normalizeQuestionText(q.Question)
		if seen[key] {
			continue
		}
		seen[key] = true
		if q.ID == "" || usedIDs[q.ID] {
			q.ID = nextQuestionID(usedIDs)
		}
		usedIDs[q.ID] = true
		merged = append(merged, q)
	}
	return merged
}

// nextQuestionID 返回最小的未占用 q{n}
func nextQuestionID(used map[string]bool) string {
	for i := 1; ; i++ {
		id := fmt.Sprintf("q%d", i)
		if !used[id] {
			return id
		}
	}
}

func normalizeQuestionText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// MergeGaps 缺口取并集，保持先 a 后 b 的顺序
func MergeGaps(a, b []string) []string {
	merged := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, g := range append(append([]string(nil), a...), b...) {
		key := strings.ToLower(strings.TrimSpace(g))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, g)
	}
	return merged
}

// ========== 正文提取 ==========

// stageDraftFields 各阶段优先查找的字段名，通用字段名兜底
var stageDraftFields = map[Stage][]string{
	StagePO:        {"prd_draft", "prd_updated", "prd"},
	StageArchitect: {"architecture_draft", "architecture_updated", "architecture"},
	StageSM:        {"stories_draft", "stories_updated", "stories"},
	StageDev:       {"implementation_notes", "implementation"},
	StageReviewer:  {"review_report", "review"},
	StageQA:        {"qa_report", "test_report"},
}

var genericDraftFields = []string{"draft", "result", "content"}

var reFencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractDraft 从可能是 JSON、围栏 JSON 或纯文本的生成结果中恢复文档正文。
// 幂等：对自身输出再次调用返回相同结果（保存路径会防御性重提取）。
func ExtractDraft(stage Stage, text string) string {
	fields := append(append([]string(nil), stageDraftFields[stage]...), genericDraftFields...)

	// a) 整段文本即 JSON 对象
	if draft, ok := lookupDraftInJSON(strings.TrimSpace(text), fields); ok {
		return draft
	}

	// b) 围栏 JSON 代码块
	if m := reFencedJSON.FindStringSubmatch(text); m != nil {
		if draft, ok := lookupDraftInJSON(m[1], fields); ok {
			return draft
		}
	}

	// c) 直接从原始文本正则截取带引号的字段值
	for _, field := range fields {
		re := regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
		if m := re.FindStringSubmatch(text); m != nil {
			return unescapeDraft(m[1])
		}
	}

	// d) 已经是纯文档
	return text
}

func lookupDraftInJSON(raw string, fields []string) (string, bool) {
	if !strings.HasPrefix(raw, "{") {
		return "", false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "", false
	}
	for _, field := range fields {
		if v, ok := obj[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// unescapeDraft 还原正则截取值里的反斜杠转义序列
func unescapeDraft(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '"':
			sb.WriteByte('"')
		case '\\':
			sb.WriteByte('\\')
		default:
			sb.WriteByte(s[i])
			sb.WriteByte(s[i+1])
		}
		i++
	}
	return sb.String()
}
