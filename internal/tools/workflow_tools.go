package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ========== 参数结构 ==========

type StartArgs struct {
	WorkingDirectory string `json:"working_directory" jsonschema:"required,description=项目工作目录 (绝对路径)，所有持久化数据写在其 .bmad/ 下"`
	Objective        string `json:"objective" jsonschema:"required,description=要完成的任务目标描述"`
}

type SubmitArgs struct {
	SessionID    string `json:"session_id" jsonschema:"required,description=workflow_start 返回的会话 ID"`
	Stage        string `json:"stage" jsonschema:"description=提交针对的阶段 (po/architect/sm/dev/reviewer/qa)，可选，用于一致性校验"`
	ClaudeResult string `json:"claude_result" jsonschema:"description=claude 引擎生成的结果全文"`
	CodexResult  string `json:"codex_result" jsonschema:"description=codex 引擎生成的结果全文，仅双引擎阶段需要"`
}

type AnswerArgs struct {
	SessionID string      `json:"session_id" jsonschema:"required,description=会话 ID"`
	Answers   interface{} `json:"answers" jsonschema:"required,description=问题 ID 到用户回答的映射，如 {\"q1\": \"企业内部用户\"}"`
}

type ConfirmArgs struct {
	SessionID string `json:"session_id" jsonschema:"required,description=会话 ID"`
	Confirmed bool   `json:"confirmed" jsonschema:"required,description=true=保存并进入下一阶段，false=退回继续澄清"`
}

type ApproveArgs struct {
	SessionID string `json:"session_id" jsonschema:"required,description=会话 ID"`
	Approved  bool   `json:"approved" jsonschema:"required,description=true=批准故事列表，false=驳回"`
	Feedback  string `json:"feedback" jsonschema:"description=驳回时的修改意见"`
}

type StatusArgs struct {
	SessionID string `json:"session_id" jsonschema:"required,description=会话 ID"`
}

// ========== 工具注册 ==========

// RegisterWorkflowTools 注册六个工作流工具（外加 workflow_confirm_save 兼容别名）。
func RegisterWorkflowTools(s *server.MCPServer, sm *SessionManager) {
	s.AddTool(mcp.NewTool("workflow_start",
		mcp.WithDescription(`workflow_start - 启动六阶段内容工作流

用途：
  为一个任务目标创建会话，流水线固定为 po → architect → sm → dev → reviewer → qa。
  返回首个阶段（po）的角色提示词与所需引擎列表，由调用方驱动引擎生成后通过 workflow_submit 提交。

参数：
  working_directory (必填)
    项目工作目录绝对路径。会话、产物、数据库都持久化在其 .bmad/ 子目录下，进程重启后可凭 session_id 恢复。
  objective (必填)
    任务目标的一句话描述，会被转成任务名（如 "Build a user auth system" → build-a-user-auth-system）。

示例：
  workflow_start(working_directory="/path/to/project", objective="构建用户认证系统")

触发词：
  "启动工作流"、"开始 BMAD"、"新建任务流水线"`),
		mcp.WithInputSchema[StartArgs](),
	), wrapStart(sm))

	s.AddTool(mcp.NewTool("workflow_submit",
		mcp.WithDescription(`workflow_submit - 提交当前阶段的引擎生成结果

用途：
  把引擎生成的全文交给工作流评估。po/architect 为双引擎门控阶段：
  需要同时提交 claude_result 与 codex_result，系统各自打分后择优合并；
  得分 >= 90 进入待确认，不足 90 返回问题清单（澄清）或缺口分析（改进）。
  sm/dev/reviewer/qa 为单引擎阶段，只需 claude_result，提交即落盘产物。

参数：
  session_id (必填)
  stage (可选)
    填写时会校验与会话当前阶段一致，防止错位提交。
  claude_result / codex_result
    引擎输出全文。正文会被转为引用存储，响应里只带摘要与路径。

注意：
  响应中 requires_confirmation=true 时必须把决策交还给用户，不得代替用户确认或作答。

触发词：
  "提交 PRD"、"提交架构"、"提交实现结果"`),
		mcp.WithInputSchema[SubmitArgs](),
	), wrapSubmit(sm))

	s.AddTool(mcp.NewTool("workflow_answer",
		mcp.WithDescription(`workflow_answer - 回传用户对澄清问题的回答

用途：
  会话处于澄清态（clarifying）时，把用户对问题清单的回答写回会话。
  回答会累积合并（同 ID 覆盖），随后会话转入改进态（refining），
  调用方应携带原草稿与回答重新驱动引擎生成，再次 workflow_submit。

参数：
  session_id (必填)
  answers (必填)
    问题 ID 到回答的映射对象，如 {"q1": "目标用户是企业内部员工", "q2": "需要支持 SSO"}。
    也兼容序列化成字符串的 JSON 对象。

触发词：
  "回答澄清问题"、"补充需求信息"`),
		mcp.WithInputSchema[AnswerArgs](),
	), wrapAnswer(sm))

	confirmDesc := `workflow_confirm - 确认或否决待保存的阶段结果

用途：
  门控阶段（po/architect）得分过线后进入待确认态（awaiting_confirmation），
  必须由用户决定：confirmed=true 把最终结果落盘为产物并推进到下一阶段；
  confirmed=false 退回澄清态，原有问题、缺口与草稿原样保留，不丢弃任何内容。

参数：
  session_id (必填)
  confirmed (必填)

触发词：
  "确认保存"、"保存 PRD"、"先不保存，再改改"`

	s.AddTool(mcp.NewTool("workflow_confirm",
		mcp.WithDescription(confirmDesc),
		mcp.WithInputSchema[ConfirmArgs](),
	), wrapConfirm(sm))

	// 历史客户端使用的旧名，行为与 workflow_confirm 完全一致
	s.AddTool(mcp.NewTool("workflow_confirm_save",
		mcp.WithDescription(confirmDesc),
		mcp.WithInputSchema[ConfirmArgs](),
	), wrapConfirm(sm))

	s.AddTool(mcp.NewTool("workflow_approve",
		mcp.WithDescription(`workflow_approve - 批准或驳回故事列表

用途：
  sm 阶段提交后进入待批准态（awaiting_approval），由用户决定：
  approved=true 推进到 dev 阶段（响应会附带范围说明要求：开发前必须先向用户索取明确实现范围）；
  approved=false 连同 feedback 退回改进态，调用方按意见重新生成故事列表。
  驳回在任何活跃状态下都被接受，批准只在待批准态下有效。

参数：
  session_id (必填)
  approved (必填)
  feedback (可选)
    驳回时的修改意见，会进入改进指引。

触发词：
  "批准故事"、"故事列表通过"、"驳回，拆得再细一点"`),
		mcp.WithInputSchema[ApproveArgs](),
	), wrapApprove(sm))

	s.AddTool(mcp.NewTool("workflow_status",
		mcp.WithDescription(`workflow_status - 查询会话当前状态

用途：
  纯读操作，返回会话的阶段矩阵投影：各阶段状态/得分/迭代轮次、
  问题与回答计数、引用存在性布尔、已落盘产物路径列表。
  不包含任何正文内容，不改变会话状态。进程重启后也可查询（自动从磁盘恢复会话）。

参数：
  session_id (必填)

触发词：
  "工作流进行到哪了"、"查看会话状态"`),
		mcp.WithInputSchema[StatusArgs](),
	), wrapStatus(sm))
}
