package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cexll/bmad-mcp-server/internal/core"
)

// ========== 内容引用存储 ==========

// summaryLimit 字符摘要上限，全站统一
const summaryLimit = 200

// RefStore 大文本/结构落盘，会话记录只存引用。
// 文件按 {stage}_{kind}_{纳秒时间戳} 命名，只新建不覆盖。
type RefStore struct {
	st *core.SessionStore
}

// NewRefStore 创建引用存储
func NewRefStore(st *core.SessionStore) *RefStore {
	return &RefStore{st: st}
}

// Put 写入内容并返回引用。字符串取前 200 字符做摘要；
// 列表/对象给结构化描述（截断序列化结构对人毫无意义）。
func (r *RefStore) Put(ctx context.Context, sessionID string, stage Stage, kind string, content interface{}) (*ContentReference, error) {
	var data []byte
	var summary string

	switch v := content.(type) {
	case string:
		data = []byte(v)
		summary = truncateSummary(v)
	case []byte:
		data = v
		summary = truncateSummary(string(v))
	default:
		var err error
		data, err = json.MarshalIndent(content, "", "  ")
		if err != nil {
			return nil, err
		}
		summary = structuralSummary(content)
	}

	name := fmt.Sprintf("%s_%s_%d.txt", stage, kind, time.Now().UnixNano())
	relPath, err := r.st.WriteRef(ctx, sessionID, name, data)
	if err != nil {
		return nil, err
	}

	return &ContentReference{
		Summary:   summary,
		Path:      relPath,
		Size:      int64(len(data)),
		UpdatedAt: time.Now(),
	}, nil
}

// Get 读取引用指向的完整内容。文件缺失必须作为失败上抛，
// 静默返回空串会污染下游的评分与合并。
func (r *RefStore) Get(ctx context.Context, ref *ContentReference) (string, error) {
	data, err := r.st.ReadRef(ctx, ref.Path)
	if err != nil {
		return "", errReferenceRead(ref.Path, err)
	}
	return string(data), nil
}

func truncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= summaryLimit {
		return s
	}
	return string(runes[:summaryLimit]) + "..."
}

// structuralSummary 非字符串内容的结构化摘要
func structuralSummary(content interface{}) string {
	switch v := content.(type) {
	case []Question:
		return fmt.Sprintf("问题列表（%d 项）", len(v))
	case []string:
		return fmt.Sprintf("列表（%d 项）", len(v))
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("对象（%d 字段: %s）", len(keys), previewKeys(keys))
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("对象（%d 字段: %s）", len(keys), previewKeys(keys))
	default:
		return fmt.Sprintf("结构化内容（%T）", content)
	}
}

func previewKeys(keys []string) string {
	const maxPreview = 5
	if len(keys) > maxPreview {
		keys = keys[:maxPreview]
	}
	return strings.Join(keys, ", ")
}
