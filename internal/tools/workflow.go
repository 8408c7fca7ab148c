package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cexll/bmad-mcp-server/internal/core"
	"github.com/google/uuid"
)

// ========== 会话状态机 ==========
// 状态流转：generating → clarifying ⇄ refining → awaiting_confirmation /
// awaiting_approval → completed。awaiting_approval 只有无门控的中间阶段
// 可达，awaiting_confirmation 只有两个门控阶段可达。
// 所有流转先在内存中算完，由 handler 层一次性落盘。

// Outcome 一次流转的结论，handler 据此组装响应载荷
type Outcome struct {
	State        SessionState
	Stage        Stage
	Score        *int
	Questions    []Question
	Gaps         []string
	Guidance     []string
	Draft        string
	AnswersRef   *ContentReference
	ArtifactPath string
	Advanced     bool   // 是否推进到了下一阶段
	Completed    bool   // 整个工作流是否终结
	ScopeNote    string // 批准 SM 阶段时附带的范围确认提示
}

// NewSession 创建会话：六个阶段记录全部建好（pending），
// 当前阶段指向流水线首段并置为 in_progress。
func NewSession(workdir, taskName, objective string) *Session {
	now := time.Now()
	stages := make(map[Stage]*StageRecord, len(pipeline))
	for _, st := range pipeline {
		stages[st] = &StageRecord{
			Status:    StagePending,
			Iteration: 1,
		}
	}
	stages[pipeline[0]].Status = StageInProgress

	return &Session{
		SessionID:    uuid.NewString(),
		TaskName:     taskName,
		Workdir:      workdir,
		Objective:    objective,
		CurrentStage: pipeline[0],
		State:        StateGenerating,
		Stages:       stages,
		Artifacts:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// submitActive 检查当前状态是否接受 submit
func submitActive(state SessionState) bool {
	switch state {
	case StateGenerating, StateClarifying, StateRefining:
		return true
	default:
		return false
	}
}

// SubmitGated 门控阶段（双候选）提交。
// 对每个候选跑评分与澄清提取，合并裁决后按以下优先级流转：
//  1. 首轮且有问题 → clarifying（即便侥幸 ≥90：未经澄清的首稿按策略视为不完整）
//  2. 得分 ≥90 → awaiting_confirmation，净化稿写为 final_result 引用
//  3. 得分 <90 → 迭代 +1；已澄清过的走缺口分析进 refining，
//     否则有问题进 clarifying、没问题带通用指引进 refining
func SubmitGated(ctx context.Context, sess *Session, refs *RefStore, resultA, resultB string) (*Outcome, error) {
	stage := sess.CurrentStage
	if !stage.Gated() {
		return nil, errInvalidArgument(fmt.Sprintf("阶段 %s 不是门控阶段", stage))
	}
	if !submitActive(sess.State) {
		return nil, errInvalidState("submit", sess.State)
	}
	if strings.TrimSpace(resultA) == "" && strings.TrimSpace(resultB) == "" {
		return nil, errInvalidArgument("submit 至少需要一个候选引擎的结果")
	}

	engines := EngineSetForStage(sess.Workdir, stage)
	engineA := engines[0]
	engineB := EngineCodex
	if len(engines) > 1 {
		engineB = engines[1]
	}

	rec := sess.stage()

	var scoreA, scoreB int
	var questionsA, questionsB []Question
	var gapsA, gapsB []string

	if strings.TrimSpace(resultA) != "" {
		scoreA = ExtractScore(resultA)
		questionsA = ExtractQuestions(resultA)
		gapsA = ExtractGaps(resultA)
		ref, err := refs.Put(ctx, sess.SessionID, stage, engineA+"_result", resultA)
		if err != nil {
			return nil, err
		}
		rec.CandidateA = ref
	}
	if strings.TrimSpace(resultB) != "" {
		scoreB = ExtractScore(resultB)
		questionsB = ExtractQuestions(resultB)
		gapsB = ExtractGaps(resultB)
		ref, err := refs.Put(ctx, sess.SessionID, stage, engineB+"_result", resultB)
		if err != nil {
			return nil, err
		}
		rec.CandidateB = ref
	}

	merged := MergeCandidates(engineA, scoreA, resultA, engineB, scoreB, resultB)
	questions := MergeQuestions(questionsA, questionsB)
	gaps := MergeGaps(gapsA, gapsB)

	score := merged.Score
	rec.Score = &score
	draft := ExtractDraft(stage, merged.Text)

	// 首轮（尚未迭代、尚未记录任何回答）且抽到了问题：无条件进入澄清
	firstRound := rec.Iteration == 1 && len(rec.Answers) == 0
	if firstRound && len(questions) > 0 {
		rec.Questions = questions
		rec.Gaps = gaps
		rec.Draft = draft
		sess.State = StateClarifying
		return &Outcome{
			State:     sess.State,
			Stage:     stage,
			Score:     &score,
			Questions: questions,
			Gaps:      gaps,
			Draft:     draft,
		}, nil
	}

	if score >= passingScore {
		ref, err := refs.Put(ctx, sess.SessionID, stage, "final_result", draft)
		if err != nil {
			return nil, err
		}
		rec.FinalResult = ref
		rec.Draft = draft
		sess.State = StateAwaitingConfirmation
		return &Outcome{
			State: sess.State,
			Stage: stage,
			Score: &score,
			Draft: draft,
		}, nil
	}

	// 低于门槛：进入下一轮迭代
	rec.Iteration++
	clarified := rec.Iteration > 2 || len(rec.Answers) > 0

	switch {
	case clarified:
		// 已澄清仍不达标：给逐项改进指引而不是再抛问题（再问会无限循环）
		guidance := AnalyzeGaps(merged.Text, score)
		rec.Gaps = guidance
		rec.Draft = draft
		sess.State = StateRefining
		return &Outcome{
			State:    sess.State,
			Stage:    stage,
			Score:    &score,
			Guidance: guidance,
			Draft:    draft,
		}, nil

	case len(questions) > 0:
		rec.Questions = questions
		rec.Gaps = gaps
		rec.Draft = draft
		sess.State = StateClarifying
		return &Outcome{
			State:     sess.State,
			Stage:     stage,
			Score:     &score,
			Questions: questions,
			Gaps:      gaps,
			Draft:     draft,
		}, nil

	default:
		guidance := []string{fmt.Sprintf("当前得分 %d 低于 %d，请围绕原始目标重新生成更完整的文档。", score, passingScore)}
		rec.Gaps = guidance
		rec.Draft = draft
		sess.State = StateRefining
		return &Outcome{
			State:    sess.State,
			Stage:    stage,
			Score:    &score,
			Guidance: guidance,
			Draft:    draft,
		}, nil
	}
}

// SubmitSingle 单候选阶段提交：结果直接净化后写为 final_result 与产物。
// SM 阶段进入 awaiting_approval 等人批准，其余三个末段阶段自动推进。
func SubmitSingle(ctx context.Context, sess *Session, refs *RefStore, st *core.SessionStore, result string) (*Outcome, error) {
	stage := sess.CurrentStage
	if stage.Gated() {
		return nil, errInvalidArgument(fmt.Sprintf("阶段 %s 是门控阶段，需要候选引擎结果", stage))
	}
	if !submitActive(sess.State) {
		return nil, errInvalidState("submit", sess.State)
	}
	if strings.TrimSpace(result) == "" {
		return nil, errInvalidArgument("submit 需要提供结果文本")
	}

	rec := sess.stage()
	clean := ExtractDraft(stage, result)

	ref, err := refs.Put(ctx, sess.SessionID, stage, "final_result", clean)
	if err != nil {
		return nil, err
	}
	rec.FinalResult = ref
	rec.Draft = clean

	artifactPath, err := st.WriteArtifact(ctx, sess.TaskName, stageArtifactFiles[stage], []byte(clean))
	if err != nil {
		return nil, err
	}
	appendArtifact(sess, artifactPath)

	if stage.RequiresApproval() {
		sess.State = StateAwaitingApproval
		return &Outcome{
			State:        sess.State,
			Stage:        stage,
			ArtifactPath: artifactPath,
		}, nil
	}

	out := completeStageAndAdvance(sess)
	out.ArtifactPath = artifactPath
	return out, nil
}

// Answer 记录澄清回答并转入 refining。
// 这是 clarifying 的唯一出口；refining 下也接受（补答/改答），
// 其余状态没有待回答的问题，一律拒绝。
func Answer(ctx context.Context, sess *Session, refs *RefStore, answers map[string]string) (*Outcome, error) {
	if sess.State != StateClarifying && sess.State != StateRefining {
		return nil, errInvalidState("answer", sess.State)
	}

	rec := sess.stage()
	if rec.Answers == nil {
		rec.Answers = make(map[string]string, len(answers))
	}
	for id, text := range answers {
		rec.Answers[id] = text
	}

	var answersRef *ContentReference
	if len(rec.Answers) > 0 {
		ref, err := refs.Put(ctx, sess.SessionID, sess.CurrentStage, "user_answers", rec.Answers)
		if err != nil {
			return nil, err
		}
		answersRef = ref
	}

	sess.State = StateRefining
	return &Outcome{
		State:      sess.State,
		Stage:      sess.CurrentStage,
		Score:      rec.Score,
		AnswersRef: answersRef,
		Guidance:   rec.Gaps,
	}, nil
}

// Confirm 门控阶段确认。否决只是回到 clarifying，此前存的问题/缺口/
// 草稿原样保留；确认则读全量终稿、写产物并立即推进下一阶段
// （确认即保存+推进，一次人工动作完成两件事）。
func Confirm(ctx context.Context, sess *Session, refs *RefStore, st *core.SessionStore, confirmed bool) (*Outcome, error) {
	if sess.State != StateAwaitingConfirmation {
		return nil, errInvalidState("confirm", sess.State)
	}

	stage := sess.CurrentStage
	rec := sess.stage()

	if !confirmed {
		// 终稿引用只在待确认/待批准/已完成状态下挂在记录上；
		// 退回后摘除（磁盘文件保留，引用文件从不覆盖或删除）
		rec.FinalResult = nil
		sess.State = StateClarifying
		return &Outcome{
			State:     sess.State,
			Stage:     stage,
			Score:     rec.Score,
			Questions: rec.Questions,
			Gaps:      rec.Gaps,
			Draft:     rec.Draft,
		}, nil
	}

	if rec.FinalResult == nil {
		// 正常流转不可达，防御性检查
		return nil, errMissingFinalResult(sess.SessionID, stage)
	}

	// 先读内容：读失败必须上抛，且此时尚未改动任何状态
	content, err := refs.Get(ctx, rec.FinalResult)
	if err != nil {
		return nil, err
	}

	artifactPath, err := st.WriteArtifact(ctx, sess.TaskName, stageArtifactFiles[stage], []byte(content))
	if err != nil {
		return nil, err
	}
	appendArtifact(sess, artifactPath)

	out := completeStageAndAdvance(sess)
	out.ArtifactPath = artifactPath
	return out, nil
}

// Approve 批准/驳回。批准只对 awaiting_approval 生效并自动推进；
// 驳回在任何活动状态下都作为带反馈的通用退回路径回到 refining。
func Approve(ctx context.Context, sess *Session, approved bool, feedback string) (*Outcome, error) {
	if sess.State == StateCompleted {
		return nil, errInvalidState("approve", sess.State)
	}

	rec := sess.stage()

	if !approved {
		rejected := false
		rec.Approved = &rejected
		rec.Feedback = feedback
		// 从待确认/待批准退回时摘除终稿引用（磁盘文件保留），
		// 引用只允许挂在等待态与完成态的记录上
		rec.FinalResult = nil
		sess.State = StateRefining
		guidance := []string{"批准被驳回，请根据反馈修改后重新提交。"}
		if strings.TrimSpace(feedback) != "" {
			guidance = append(guidance, feedback)
		}
		return &Outcome{
			State:    sess.State,
			Stage:    sess.CurrentStage,
			Guidance: guidance,
		}, nil
	}

	if sess.State != StateAwaitingApproval {
		return nil, errInvalidState("approve", sess.State)
	}

	approvedFlag := true
	rec.Approved = &approvedFlag
	stage := sess.CurrentStage

	out := completeStageAndAdvance(sess)
	if next, ok := nextStage(stage); ok && next == StageDev {
		// 纯提示性信号：进入开发阶段前必须向用户确认实现范围
		out.ScopeNote = "进入开发阶段前，必须先向用户索取明确的实现范围说明，再开始生成。"
	}
	return out, nil
}

// completeStageAndAdvance 标记当前阶段完成；有下一阶段则置为
// in_progress 并回到 generating，否则整个工作流终结。
func completeStageAndAdvance(sess *Session) *Outcome {
	finished := sess.CurrentStage
	sess.stage().Status = StageCompleted

	next, ok := nextStage(finished)
	if !ok {
		sess.State = StateCompleted
		return &Outcome{
			State:     sess.State,
			Stage:     finished,
			Completed: true,
		}
	}

	sess.CurrentStage = next
	sess.Stages[next].Status = StageInProgress
	sess.State = StateGenerating
	return &Outcome{
		State:    sess.State,
		Stage:    next,
		Advanced: true,
	}
}

// appendArtifact 追加产物路径（只追加，不排序不删除；重复保存去重）
func appendArtifact(sess *Session, path string) {
	for _, p := range sess.Artifacts {
		if p == path {
			return
		}
	}
	sess.Artifacts = append(sess.Artifacts, path)
}
