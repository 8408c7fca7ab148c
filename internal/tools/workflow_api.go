package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cexll/bmad-mcp-server/internal/core"
	"github.com/cexll/bmad-mcp-server/internal/prompts"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ========== 交互类型 ==========
// 每个需要人工决策的响应都带 requires_confirmation + interaction_type，
// 调用方必须据此把决策交还给用户，不得代答。

const (
	InteractionGenerate  = "generate"
	InteractionClarify   = "clarify"
	InteractionRefine    = "refine"
	InteractionConfirm   = "confirm"
	InteractionApprove   = "approve"
	InteractionCompleted = "workflow_completed"
)

// ========== 响应载荷 ==========

// generateView 下一阶段的生成指引
type generateView struct {
	Stage           string   `json:"stage"`
	RolePrompt      string   `json:"role_prompt"`
	RequiredEngines []string `json:"required_engines"`
	ScopeNote       string   `json:"scope_note,omitempty"`
}

// clarificationView 澄清载荷
type clarificationView struct {
	Questions []Question `json:"questions"`
	Gaps      []string   `json:"gaps,omitempty"`
	Draft     string     `json:"draft,omitempty"`
}

// confirmationView 确认载荷
type confirmationView struct {
	Score  int    `json:"score"`
	Draft  string `json:"draft"`
	Prompt string `json:"prompt"`
}

// refinementView 改进载荷
type refinementView struct {
	Guidance []string          `json:"guidance"`
	Answers  map[string]string `json:"answers,omitempty"`
}

// stageStatusView 阶段状态投影：引用只暴露存在性布尔，列表只给计数
type stageStatusView struct {
	Status         string `json:"status"`
	Score          *int   `json:"score,omitempty"`
	Approved       *bool  `json:"approved,omitempty"`
	Iteration      int    `json:"iteration"`
	HasCandidateA  bool   `json:"has_candidate_a"`
	HasCandidateB  bool   `json:"has_candidate_b"`
	HasFinalResult bool   `json:"has_final_result"`
	QuestionCount  int    `json:"question_count,omitempty"`
	AnswerCount    int    `json:"answer_count,omitempty"`
	GapCount       int    `json:"gap_count,omitempty"`
}

// statusView 会话状态投影（纯读，不含任何正文内容）
type statusView struct {
	SessionID    string                     `json:"session_id"`
	TaskName     string                     `json:"task_name"`
	Objective    string                     `json:"objective"`
	CurrentStage string                     `json:"current_stage"`
	State        string                     `json:"state"`
	Stages       map[string]stageStatusView `json:"stages"`
	Artifacts    []string                   `json:"artifacts"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// startView workflow_start 响应
type startView struct {
	SessionID            string       `json:"session_id"`
	TaskName             string       `json:"task_name"`
	Stage                string       `json:"stage"`
	State                string       `json:"state"`
	RequiresConfirmation bool         `json:"requires_confirmation"`
	InteractionType      string       `json:"interaction_type"`
	Generate             generateView `json:"generate"`
	Status               statusView   `json:"status"`
}

// submitView workflow_submit 响应
type submitView struct {
	SessionID            string             `json:"session_id"`
	Stage                string             `json:"stage"`
	State                string             `json:"state"`
	Score                *int               `json:"score,omitempty"`
	RequiresConfirmation bool               `json:"requires_confirmation"`
	InteractionType      string             `json:"interaction_type"`
	Clarification        *clarificationView `json:"clarification,omitempty"`
	Confirmation         *confirmationView  `json:"confirmation,omitempty"`
	Refinement           *refinementView    `json:"refinement,omitempty"`
	NextStage            *generateView      `json:"next_stage,omitempty"`
	ArtifactPath         string             `json:"artifact_path,omitempty"`
	WorkflowCompleted    bool               `json:"workflow_completed,omitempty"`
	Artifacts            []string           `json:"artifacts,omitempty"`
}

// answerView workflow_answer 响应
type answerView struct {
	SessionID            string            `json:"session_id"`
	Stage                string            `json:"stage"`
	State                string            `json:"state"`
	RequiresConfirmation bool              `json:"requires_confirmation"`
	InteractionType      string            `json:"interaction_type"`
	AnswersRef           *ContentReference `json:"answers_ref,omitempty"`
	Refinement           *refinementView   `json:"refinement,omitempty"`
}

// confirmView workflow_confirm 响应
type confirmView struct {
	SessionID            string             `json:"session_id"`
	Stage                string             `json:"stage"`
	State                string             `json:"state"`
	RequiresConfirmation bool               `json:"requires_confirmation"`
	InteractionType      string             `json:"interaction_type"`
	Clarification        *clarificationView `json:"clarification,omitempty"`
	NextStage            *generateView      `json:"next_stage,omitempty"`
	ArtifactPath         string             `json:"artifact_path,omitempty"`
	WorkflowCompleted    bool               `json:"workflow_completed,omitempty"`
	Artifacts            []string           `json:"artifacts,omitempty"`
}

// approveView workflow_approve 响应
type approveView struct {
	SessionID            string          `json:"session_id"`
	Stage                string          `json:"stage"`
	State                string          `json:"state"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	InteractionType      string          `json:"interaction_type"`
	Refinement           *refinementView `json:"refinement,omitempty"`
	NextStage            *generateView   `json:"next_stage,omitempty"`
	WorkflowCompleted    bool            `json:"workflow_completed,omitempty"`
	Artifacts            []string        `json:"artifacts,omitempty"`
}

// errorView 设计内可恢复错误的结构化失败响应
type errorView struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action"`
	SessionID string `json:"session_id,omitempty"`
}

// ========== 载荷组装 ==========

func renderJSON(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("序列化响应失败: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// failResult 把设计内错误转成结构化失败响应；
// 其余意外错误（文件系统权限等）原样上抛终止本次调用。
func failResult(action, sessionID string, err error) (*mcp.CallToolResult, error) {
	we, ok := AsWorkflowError(err)
	if !ok {
		return nil, err
	}
	data, _ := json.MarshalIndent(errorView{
		Error:     we.Code,
		Message:   we.Message,
		Action:    action,
		SessionID: sessionID,
	}, "", "  ")
	return mcp.NewToolResultError(string(data)), nil
}

func buildGenerateView(sess *Session, scopeNote string) generateView {
	stage := string(sess.CurrentStage)
	return generateView{
		Stage:           stage,
		RolePrompt:      prompts.ForStage(stage),
		RequiredEngines: EngineSetForStage(sess.Workdir, sess.CurrentStage),
		ScopeNote:       scopeNote,
	}
}

func buildStatusView(sess *Session) statusView {
	stages := make(map[string]stageStatusView, len(sess.Stages))
	for name, rec := range sess.Stages {
		stages[string(name)] = stageStatusView{
			Status:         string(rec.Status),
			Score:          rec.Score,
			Approved:       rec.Approved,
			Iteration:      rec.Iteration,
			HasCandidateA:  rec.CandidateA != nil,
			HasCandidateB:  rec.CandidateB != nil,
			HasFinalResult: rec.FinalResult != nil,
			QuestionCount:  len(rec.Questions),
			AnswerCount:    len(rec.Answers),
			GapCount:       len(rec.Gaps),
		}
	}
	return statusView{
		SessionID:    sess.SessionID,
		TaskName:     sess.TaskName,
		Objective:    sess.Objective,
		CurrentStage: string(sess.CurrentStage),
		State:        string(sess.State),
		Stages:       stages,
		Artifacts:    sess.Artifacts,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	}
}

// ========== Handlers ==========

func wrapStart(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args StartArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("参数格式错误: %v", err)), nil
		}
		if strings.TrimSpace(args.WorkingDirectory) == "" {
			return failResult("start", "", errInvalidArgument("start 需要 working_directory 参数"))
		}
		if strings.TrimSpace(args.Objective) == "" {
			return failResult("start", "", errInvalidArgument("start 需要 objective 参数"))
		}

		st, err := sm.StoreFor(args.WorkingDirectory)
		if err != nil {
			return failResult("start", "", errInvalidArgument(err.Error()))
		}

		taskName, err := UniqueTaskName(ctx, st, args.Objective)
		if err != nil {
			return nil, err
		}

		sess := NewSession(st.Workdir(), taskName, args.Objective)
		sm.Register(sess)

		if err := st.InsertTaskMapping(ctx, &core.TaskMapping{
			SessionID: sess.SessionID,
			TaskName:  taskName,
			Objective: args.Objective,
		}); err != nil {
			return nil, err
		}
		if err := sm.Persist(ctx, sess); err != nil {
			return nil, err
		}
		_ = sm.AppendEvent(ctx, sess, "start", args.Objective)

		return renderJSON(startView{
			SessionID:            sess.SessionID,
			TaskName:             sess.TaskName,
			Stage:                string(sess.CurrentStage),
			State:                string(sess.State),
			RequiresConfirmation: false,
			InteractionType:      InteractionGenerate,
			Generate:             buildGenerateView(sess, ""),
			Status:               buildStatusView(sess),
		}), nil
	}
}

func wrapSubmit(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SubmitArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("参数格式错误: %v", err)), nil
		}

		sess, err := sm.GetSession(ctx, args.SessionID)
		if err != nil {
			return failResult("submit", args.SessionID, err)
		}
		if args.Stage != "" && Stage(args.Stage) != sess.CurrentStage {
			return failResult("submit", args.SessionID, errInvalidArgument(
				fmt.Sprintf("提交阶段 %s 与会话当前阶段 %s 不一致", args.Stage, sess.CurrentStage)))
		}

		st, err := sm.StoreFor(sess.Workdir)
		if err != nil {
			return nil, err
		}
		refs := NewRefStore(st)

		var out *Outcome
		if sess.CurrentStage.Gated() {
			out, err = SubmitGated(ctx, sess, refs, args.ClaudeResult, args.CodexResult)
		} else {
			result := args.ClaudeResult
			if strings.TrimSpace(result) == "" {
				result = args.CodexResult
			}
			out, err = SubmitSingle(ctx, sess, refs, st, result)
		}
		if err != nil {
			return failResult("submit", args.SessionID, err)
		}

		if err := sm.Persist(ctx, sess); err != nil {
			return nil, err
		}
		eventPayload, _ := json.Marshal(map[string]interface{}{"state": out.State, "score": out.Score})
		_ = sm.AppendEvent(ctx, sess, "submit", string(eventPayload))

		view := submitView{
			SessionID:    sess.SessionID,
			Stage:        string(out.Stage),
			State:        string(out.State),
			Score:        out.Score,
			ArtifactPath: out.ArtifactPath,
		}

		switch out.State {
		case StateClarifying:
			view.RequiresConfirmation = true
			view.InteractionType = InteractionClarify
			view.Clarification = &clarificationView{
				Questions: out.Questions,
				Gaps:      out.Gaps,
				Draft:     out.Draft,
			}
		case StateAwaitingConfirmation:
			view.RequiresConfirmation = true
			view.InteractionType = InteractionConfirm
			view.Confirmation = &confirmationView{
				Score:  *out.Score,
				Draft:  out.Draft,
				Prompt: "得分已过线，确认保存并进入下一阶段？",
			}
		case StateRefining:
			view.InteractionType = InteractionRefine
			view.Refinement = &refinementView{Guidance: out.Guidance}
		case StateAwaitingApproval:
			view.RequiresConfirmation = true
			view.InteractionType = InteractionApprove
		case StateCompleted:
			view.InteractionType = InteractionCompleted
			view.WorkflowCompleted = true
			view.Artifacts = sess.Artifacts
		default:
			view.InteractionType = InteractionGenerate
			next := buildGenerateView(sess, out.ScopeNote)
			view.NextStage = &next
		}

		return renderJSON(view), nil
	}
}

// parseAnswers 防御性解析回答：兼容对象与序列化成字符串的对象，
// 任何解析失败都退化为空 map（澄清是尽力而为，不因此失败整个操作）。
func parseAnswers(raw interface{}) map[string]string {
	out := make(map[string]string)
	switch v := raw.(type) {
	case map[string]interface{}:
		for id, val := range v {
			out[id] = fmt.Sprintf("%v", val)
		}
	case map[string]string:
		for id, val := range v {
			out[id] = val
		}
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return out
		}
		for id, val := range m {
			out[id] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

func wrapAnswer(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args AnswerArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("参数格式错误: %v", err)), nil
		}

		sess, err := sm.GetSession(ctx, args.SessionID)
		if err != nil {
			return failResult("answer", args.SessionID, err)
		}

		st, err := sm.StoreFor(sess.Workdir)
		if err != nil {
			return nil, err
		}

		out, err := Answer(ctx, sess, NewRefStore(st), parseAnswers(args.Answers))
		if err != nil {
			return failResult("answer", args.SessionID, err)
		}

		if err := sm.Persist(ctx, sess); err != nil {
			return nil, err
		}
		_ = sm.AppendEvent(ctx, sess, "answer", fmt.Sprintf("%d answers", len(sess.stage().Answers)))

		return renderJSON(answerView{
			SessionID:       sess.SessionID,
			Stage:           string(out.Stage),
			State:           string(out.State),
			InteractionType: InteractionRefine,
			AnswersRef:      out.AnswersRef,
			Refinement: &refinementView{
				Guidance: out.Guidance,
				Answers:  sess.stage().Answers,
			},
		}), nil
	}
}

func wrapConfirm(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ConfirmArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("参数格式错误: %v", err)), nil
		}

		sess, err := sm.GetSession(ctx, args.SessionID)
		if err != nil {
			return failResult("confirm", args.SessionID, err)
		}

		st, err := sm.StoreFor(sess.Workdir)
		if err != nil {
			return nil, err
		}

		out, err := Confirm(ctx, sess, NewRefStore(st), st, args.Confirmed)
		if err != nil {
			return failResult("confirm", args.SessionID, err)
		}

		if err := sm.Persist(ctx, sess); err != nil {
			return nil, err
		}
		_ = sm.AppendEvent(ctx, sess, "confirm", fmt.Sprintf("confirmed=%v", args.Confirmed))

		view := confirmView{
			SessionID:    sess.SessionID,
			Stage:        string(out.Stage),
			State:        string(out.State),
			ArtifactPath: out.ArtifactPath,
		}

		switch {
		case out.State == StateClarifying:
			// 否决：原样重发之前的问题/缺口/草稿，什么都不丢弃
			view.RequiresConfirmation = true
			view.InteractionType = InteractionClarify
			view.Clarification = &clarificationView{
				Questions: out.Questions,
				Gaps:      out.Gaps,
				Draft:     out.Draft,
			}
		case out.Completed:
			view.InteractionType = InteractionCompleted
			view.WorkflowCompleted = true
			view.Artifacts = sess.Artifacts
		default:
			view.InteractionType = InteractionGenerate
			next := buildGenerateView(sess, "")
			view.NextStage = &next
		}

		return renderJSON(view), nil
	}
}

func wrapApprove(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ApproveArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("参数格式错误: %v", err)), nil
		}

		sess, err := sm.GetSession(ctx, args.SessionID)
		if err != nil {
			return failResult("approve", args.SessionID, err)
		}

		out, err := Approve(ctx, sess, args.Approved, args.Feedback)
		if err != nil {
			return failResult("approve", args.SessionID, err)
		}

		if err := sm.Persist(ctx, sess); err != nil {
			return nil, err
		}
		_ = sm.AppendEvent(ctx, sess, "approve", fmt.Sprintf("approved=%v", args.Approved))

		view := approveView{
			SessionID: sess.SessionID,
			Stage:     string(out.Stage),
			State:     string(out.State),
		}

		switch {
		case out.State == StateRefining:
			view.InteractionType = InteractionRefine
			view.Refinement = &refinementView{Guidance: out.Guidance}
		case out.Completed:
			view.InteractionType = InteractionCompleted
			view.WorkflowCompleted = true
			view.Artifacts = sess.Artifacts
		default:
			view.InteractionType = InteractionGenerate
			next := buildGenerateView(sess, out.ScopeNote)
			view.NextStage = &next
		}

		return renderJSON(view), nil
	}
}

func wrapStatus(sm *SessionManager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args StatusArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("参数格式错误: %v", err)), nil
		}

		sess, err := sm.GetSession(ctx, args.SessionID)
		if err != nil {
			return failResult("status", args.SessionID, err)
		}

		return renderJSON(buildStatusView(sess)), nil
	}
}
