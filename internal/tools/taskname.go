package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cexll/bmad-mcp-server/internal/core"
)

// ========== 任务命名 ==========

const taskNameMaxLen = 50

var (
	reSlugStrip    = regexp.MustCompile(`[^a-z0-9\s-]`)
	reSlugSpaces   = regexp.MustCompile(`\s+`)
	reSlugCollapse = regexp.MustCompile(`-{2,}`)
)

// SlugifyObjective 把自由文本目标转成目录安全的 slug：
// 小写、去非词字符、空格转连字符、折叠连字符、截断到 50 字符。
func SlugifyObjective(objective string) string {
	slug := strings.ToLower(strings.TrimSpace(objective))
	slug = reSlugStrip.ReplaceAllString(slug, "")
	slug = reSlugSpaces.ReplaceAllString(slug, "-")
	slug = reSlugCollapse.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > taskNameMaxLen {
		slug = strings.Trim(slug[:taskNameMaxLen], "-")
	}
	if slug == "" {
		slug = "task"
	}
	return slug
}

// UniqueTaskName 生成无冲突任务名：对映射表和产物目录双重查重，
// 冲突时追加 -2、-3 … 后缀。
func UniqueTaskName(ctx context.Context, st *core.SessionStore, objective string) (string, error) {
	base := SlugifyObjective(objective)
	name := base
	for i := 2; ; i++ {
		taken, err := st.TaskNameExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken && !st.ArtifactDirExists(name) {
			return name, nil
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
}
