package tools

import (
	"fmt"
	"strings"
)

// ========== 双候选合并策略 ==========

// passingScore 晋级门槛
const passingScore = 90

// MergeResult 合并结论
type MergeResult struct {
	Winner string // 胜出引擎名
	Text   string // 胜出候选原文
	Score  int    // 最终得分（即胜者得分）
}

// MergeCandidates 在两个候选输出间裁决。单引擎阶段缺失一侧按
// 得分 0 / 空文本处理。决策表：
//   - 双方 ≥90：取高分（平局归 A）
//   - 仅一方 ≥90：取过线方
//   - 双方 <90：取高分，最终得分即该低于 90 的分数（提示需再迭代）
func MergeCandidates(engineA string, scoreA int, textA string, engineB string, scoreB int, textB string) MergeResult {
	passA := scoreA >= passingScore
	passB := scoreB >= passingScore

	pickA := MergeResult{Winner: engineA, Text: textA, Score: scoreA}
	pickB := MergeResult{Winner: engineB, Text: textB, Score: scoreB}

	switch {
	case passA && !passB:
		return pickA
	case passB && !passA:
		return pickB
	default:
		// 双过或双不过：高分胜出，平局归 A
		if scoreB > scoreA {
			return pickB
		}
		return pickA
	}
}

// ========== 缺口分析 ==========
// 仅在"已澄清但仍不达标"分支触发：用户已答过一轮问题，
// 再抛新问题会无限循环，改为给出逐项改进指引。纯诊断文本，不改分数。

type gapCheck struct {
	marker string
	points int
	label  string
}

// gapSectionChecks 七个必备章节及其固定扣分值
var gapSectionChecks = []gapCheck{
	{"executive summary", 5, "Executive Summary"},
	{"business goals", 5, "Business Goals"},
	{"user stories", 10, "User Stories"},
	{"functional requirements", 10, "Functional Requirements"},
	{"non-functional requirements", 5, "Non-Functional Requirements"},
	{"technical requirements", 10, "Technical Requirements"},
	{"success metrics", 5, "Success Metrics"},
}

// gapSignalChecks 信号类检查：每类给出一个代表性标记词集合
var gapSignalChecks = []struct {
	markers []string
	label   string
	hint    string
}{
	{[]string{"acceptance criteria", "验收标准"}, "验收标准", "为每个用户故事补充可验证的验收标准（-5 分）"},
	{[]string{"dependen", "version", "依赖", "版本"}, "依赖与版本", "明确外部依赖及版本约束（-3 分）"},
	{[]string{"error handling", "exception", "错误处理", "异常"}, "错误处理", "补充错误处理与降级策略（-3 分）"},
	{[]string{"timeline", "milestone", "里程碑", "时间线"}, "时间线", "给出里程碑或交付时间线（-3 分）"},
}

// AnalyzeGaps 对候选文本做章节完整度体检，产出逐项改进指引。
// 找不到任何缺口时给出"还差 N 分"的通用建议。
func AnalyzeGaps(text string, score int) []string {
	lower := strings.ToLower(text)
	var gaps []string

	for _, check := range gapSectionChecks {
		if !strings.Contains(lower, check.marker) {
			gaps = append(gaps, fmt.Sprintf("缺少 '%s' 章节（-%d 分）", check.label, check.points))
		}
	}

	if !reMetric.MatchString(text) {
		gaps = append(gaps, "缺少量化指标（百分比、毫秒上限或数值对比，-5 分）")
	}

	for _, check := range gapSignalChecks {
		found := false
		for _, marker := range check.markers {
			if strings.Contains(lower, marker) {
				found = true
				break
			}
		}
		if !found {
			gaps = append(gaps, fmt.Sprintf("缺少%s相关内容：%s", check.label, check.hint))
		}
	}

	if len(gaps) == 0 {
		gaps = append(gaps,
			fmt.Sprintf("当前得分 %d，距离 %d 分还差 %d 分。", score, passingScore, passingScore-score),
			"章节齐全但深度不足：逐节补充具体细节、数据与可验证描述，避免泛泛而谈。",
		)
	}

	return gaps
}
