package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SessionStore 会话持久层：
//   - 会话记录 / 引用文件 / 最终产物 → 工作目录下 .bmad/ 内的文件
//   - 任务映射表 / 流转事件 → 同目录 sqlite（bmad.db）
type SessionStore struct {
	db      *DatabaseManager
	workdir string
}

// NewSessionStore 创建指定工作目录的持久层实例
func NewSessionStore(workdir string) (*SessionStore, error) {
	absRoot, err := filepath.Abs(workdir)
	if err != nil {
		return nil, err
	}
	mgr, err := GetDBForWorkdir(absRoot)
	if err != nil {
		return nil, err
	}
	return &SessionStore{
		db:      mgr,
		workdir: absRoot,
	}, nil
}

// Workdir 返回绝对工作目录
func (s *SessionStore) Workdir() string {
	return s.workdir
}

func (s *SessionStore) sessionPath(sessionID string) string {
	return filepath.Join(s.workdir, ".bmad", "sessions", sessionID+".json")
}

// writeFileAtomic 整文件原子写入（tmp + rename）
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ========== 会话记录 ==========

// SaveSessionRecord 持久化会话记录（整文件覆盖）
func (s *SessionStore) SaveSessionRecord(ctx context.Context, sessionID string, data []byte) error {
	if err := writeFileAtomic(s.sessionPath(sessionID), data); err != nil {
		return fmt.Errorf("save session record %s: %w", sessionID, err)
	}
	return nil
}

// LoadSessionRecord 读取会话记录；不存在时返回 os.ErrNotExist
func (s *SessionStore) LoadSessionRecord(ctx context.Context, sessionID string) ([]byte, error) {
	return os.ReadFile(s.sessionPath(sessionID))
}

// ========== 引用文件 ==========

// WriteRef 在会话暂存区写入一个引用文件，返回相对工作目录的路径。
// 文件只新建不覆盖，每次保存生成新的时间戳文件名（由调用方保证）。
func (s *SessionStore) WriteRef(ctx context.Context, sessionID, name string, data []byte) (string, error) {
	relPath := filepath.Join(".bmad", "tmp", sessionID, name)
	if err := os.MkdirAll(filepath.Join(s.workdir, ".bmad", "tmp", sessionID), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.workdir, relPath), data, 0644); err != nil {
		return "", err
	}
	return relPath, nil
}

// ReadRef 按相对路径同步读取引用内容；文件缺失时错误原样上抛
func (s *SessionStore) ReadRef(ctx context.Context, relPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.workdir, relPath))
}

// ========== 最终产物 ==========

// WriteArtifact 写入阶段最终产物。产物目录按任务名组织（而非会话 id），
// 便于人工直接按项目名定位输出。
func (s *SessionStore) WriteArtifact(ctx context.Context, taskName, filename string, data []byte) (string, error) {
	relPath := filepath.Join(".bmad", "output", taskName, filename)
	if err := writeFileAtomic(filepath.Join(s.workdir, relPath), data); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", filename, err)
	}
	return relPath, nil
}

// ArtifactDirExists 判断任务名对应的产物目录是否已被占用
func (s *SessionStore) ArtifactDirExists(taskName string) bool {
	info, err := os.Stat(filepath.Join(s.workdir, ".bmad", "output", taskName))
	return err == nil && info.IsDir()
}

// ========== 任务映射 ==========

// InsertTaskMapping 追加一条会话→任务名映射（insert-only）
func (s *SessionStore) InsertTaskMapping(ctx context.Context, m *TaskMapping) error {
	_, err := s.db.Exec(
		"INSERT INTO task_mappings (session_id, task_name, objective) VALUES (?, ?, ?)",
		m.SessionID, m.TaskName, m.Objective,
	)
	return err
}

// TaskNameExists 检查任务名是否已被占用
func (s *SessionStore) TaskNameExists(ctx context.Context, taskName string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM task_mappings WHERE task_name = ?", taskName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ========== 流转事件 ==========

// AppendEvent 追加一条状态流转事件
func (s *SessionStore) AppendEvent(ctx context.Context, e *WorkflowEvent) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO workflow_events (session_id, stage, event_type, payload) VALUES (?, ?, ?, ?)",
		e.SessionID, e.Stage, e.EventType, e.Payload,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
