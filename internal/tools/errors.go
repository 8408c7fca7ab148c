package tools

import (
	"errors"
	"fmt"
)

// ========== 结构化错误 ==========

// 错误码：属于设计内可恢复错误面的四类，handler 层据此生成结构化失败响应。
// 其余意外错误（如文件系统权限）按环境问题直接上抛。
const (
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeMissingFinalResult = "MISSING_FINAL_RESULT"
	CodeReferenceRead      = "REFERENCE_READ_FAILURE"
	CodeInvalidState       = "INVALID_STATE"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
)

// WorkflowError 携带错误码的工作流错误
type WorkflowError struct {
	Code    string
	Message string
	Cause   error
}

func (e *WorkflowError) Error() string {
	return e.Message
}

func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// AsWorkflowError 从错误链中提取 WorkflowError
func AsWorkflowError(err error) (*WorkflowError, bool) {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

func errSessionNotFound(sessionID string) error {
	return &WorkflowError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("会话 %s 不存在（内存与持久层均无记录）", sessionID),
	}
}

func errMissingFinalResult(sessionID string, stage Stage) error {
	return &WorkflowError{
		Code:    CodeMissingFinalResult,
		Message: fmt.Sprintf("会话 %s 阶段 %s 没有可确认的 final_result 引用", sessionID, stage),
	}
}

func errReferenceRead(path string, cause error) error {
	return &WorkflowError{
		Code:    CodeReferenceRead,
		Message: fmt.Sprintf("引用内容读取失败: %s: %v", path, cause),
		Cause:   cause,
	}
}

func errInvalidState(action string, state SessionState) error {
	return &WorkflowError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("当前状态 %s 不允许执行 %s", state, action),
	}
}

func errInvalidArgument(msg string) error {
	return &WorkflowError{
		Code:    CodeInvalidArgument,
		Message: msg,
	}
}
