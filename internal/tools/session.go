package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cexll/bmad-mcp-server/internal/core"
)

// ========== 工作流数据结构 ==========

// Stage 流水线阶段（六个，顺序固定）
type Stage string

const (
	StagePO        Stage = "po"        // 产品负责人：PRD（门控，双引擎）
	StageArchitect Stage = "architect" // 架构师：架构文档（门控，双引擎）
	StageSM        Stage = "sm"        // Scrum Master：故事拆分（需人工批准）
	StageDev       Stage = "dev"       // 开发：实现说明
	StageReviewer  Stage = "reviewer"  // 评审：评审报告
	StageQA        Stage = "qa"        // QA：测试报告
)

// pipeline 阶段顺序，索引即先后关系
var pipeline = []Stage{StagePO, StageArchitect, StageSM, StageDev, StageReviewer, StageQA}

// stageArtifactFiles 每阶段固定产物文件名
var stageArtifactFiles = map[Stage]string{
	StagePO:        "prd.md",
	StageArchitect: "architecture.md",
	StageSM:        "stories.md",
	StageDev:       "implementation.md",
	StageReviewer:  "review.md",
	StageQA:        "qa_report.md",
}

func stageIndex(s Stage) int {
	for i, st := range pipeline {
		if st == s {
			return i
		}
	}
	return -1
}

func nextStage(s Stage) (Stage, bool) {
	idx := stageIndex(s)
	if idx < 0 || idx+1 >= len(pipeline) {
		return "", false
	}
	return pipeline[idx+1], true
}

// Gated 是否为质量门控阶段（≥90 分才能进入确认）
func (s Stage) Gated() bool {
	return s == StagePO || s == StageArchitect
}

// RequiresApproval 是否为无门控、需人工批准的中间阶段
func (s Stage) RequiresApproval() bool {
	return s == StageSM
}

// SessionState 会话状态
type SessionState string

const (
	StateGenerating           SessionState = "generating"
	StateClarifying           SessionState = "clarifying"
	StateRefining             SessionState = "refining"
	StateAwaitingConfirmation SessionState = "awaiting_confirmation"
	StateAwaitingApproval     SessionState = "awaiting_approval"
	StateCompleted            SessionState = "completed"
)

// StageStatus 阶段状态
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
)

// ContentReference 内容引用：大文本落盘后在会话记录里只保留的间接引用
type ContentReference struct {
	Summary   string    `json:"summary"`
	Path      string    `json:"path"` // 相对工作目录
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Question 澄清问题
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

// StageRecord 每阶段一条，会话创建时六条全部建好（pending）
type StageRecord struct {
	Status      StageStatus       `json:"status"`
	Score       *int              `json:"score,omitempty"`
	Approved    *bool             `json:"approved,omitempty"`
	Iteration   int               `json:"iteration"`
	Draft       string            `json:"draft,omitempty"`
	Questions   []Question        `json:"questions,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
	Gaps        []string          `json:"gaps,omitempty"`
	Feedback    string            `json:"feedback,omitempty"`
	CandidateA  *ContentReference `json:"candidate_a,omitempty"`
	CandidateB  *ContentReference `json:"candidate_b,omitempty"`
	FinalResult *ContentReference `json:"final_result,omitempty"`
}

// Session 工作单元。内容字段一律存引用，不内联大文本。
type Session struct {
	SessionID    string                 `json:"session_id"`
	TaskName     string                 `json:"task_name"`
	Workdir      string                 `json:"workdir"`
	Objective    string                 `json:"objective"`
	CurrentStage Stage                  `json:"current_stage"`
	State        SessionState           `json:"state"`
	Stages       map[Stage]*StageRecord `json:"stages"`
	Artifacts    []string               `json:"artifacts"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// stage 当前阶段记录
func (s *Session) stage() *StageRecord {
	return s.Stages[s.CurrentStage]
}

// ========== 会话管理器 ==========

// SessionManager 内存会话表 + 各工作目录持久层。
// 同一会话的操作由调用方串行化（人机回环天然串行）；
// 不同会话可并行，这里只对管理器自身的表加锁。
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	stores   map[string]*core.SessionStore
	workdirs []string
}

// NewSessionManager 创建会话管理器
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		stores:   make(map[string]*core.SessionStore),
	}
}

// StoreFor 获取（并缓存）指定工作目录的持久层
func (sm *SessionManager) StoreFor(workdir string) (*core.SessionStore, error) {
	st, err := core.NewSessionStore(workdir)
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if cached, ok := sm.stores[st.Workdir()]; ok {
		return cached, nil
	}
	sm.stores[st.Workdir()] = st
	sm.workdirs = append(sm.workdirs, st.Workdir())
	return st, nil
}

// Register 登记新会话
func (sm *SessionManager) Register(sess *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[sess.SessionID] = sess
}

// GetSession 按 id 获取会话；内存未命中时从持久层懒加载（进程重启后恢复）。
// 依次尝试：已知的各工作目录 → 进程当前目录。
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	sm.mu.Lock()
	if sess, ok := sm.sessions[sessionID]; ok {
		sm.mu.Unlock()
		return sess, nil
	}
	candidates := append([]string(nil), sm.workdirs...)
	sm.mu.Unlock()

	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, cwd)
	}

	for _, dir := range candidates {
		st, err := sm.StoreFor(dir)
		if err != nil {
			continue
		}
		data, err := st.LoadSessionRecord(ctx, sessionID)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
		}
		sm.Register(&sess)
		return &sess, nil
	}

	return nil, errSessionNotFound(sessionID)
}

// Persist 将会话整体落盘（单次原子写，失败前不产生部分持久变更）
func (sm *SessionManager) Persist(ctx context.Context, sess *Session) error {
	st, err := sm.StoreFor(sess.Workdir)
	if err != nil {
		return err
	}
	sess.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return st.SaveSessionRecord(ctx, sess.SessionID, data)
}

// AppendEvent 追加流转事件（记录失败不阻断主流程，由调用方忽略返回值）
func (sm *SessionManager) AppendEvent(ctx context.Context, sess *Session, eventType, payload string) error {
	st, err := sm.StoreFor(sess.Workdir)
	if err != nil {
		return err
	}
	_, err = st.AppendEvent(ctx, &core.WorkflowEvent{
		SessionID: sess.SessionID,
		Stage:     string(sess.CurrentStage),
		EventType: eventType,
		Payload:   payload,
	})
	return err
}
