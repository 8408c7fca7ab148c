package core

import (
	"time"
)

// TaskMapping 会话到任务名的映射记录（仅供人工查询，不参与状态恢复）
type TaskMapping struct {
	SessionID string    `db:"session_id"`
	TaskName  string    `db:"task_name"`
	Objective string    `db:"objective"`
	CreatedAt time.Time `db:"created_at"`
}

// WorkflowEvent 状态流转事件（追加式审计日志）
type WorkflowEvent struct {
	ID        int64     `db:"id"`
	SessionID string    `db:"session_id"`
	Stage     string    `db:"stage"`
	EventType string    `db:"event_type"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}
