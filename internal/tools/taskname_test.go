package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/cexll/bmad-mcp-server/internal/core"
)

func TestSlugifyObjective(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Build a user authentication system with JWT", "build-a-user-authentication-system-with-jwt"},
		{"  Fix   the  (critical!) bug#42  ", "fix-the-critical-bug42"},
		{"---", "task"},
		{"构建用户认证系统", "task"}, // 非 ASCII 全部剥除后退化为默认名
	}
	for _, c := range cases {
		if got := SlugifyObjective(c.in); got != c.want {
			t.Errorf("SlugifyObjective(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSlugifyObjective_Truncation(t *testing.T) {
	long := strings.Repeat("word ", 30)
	got := SlugifyObjective(long)
	if len(got) > 50 {
		t.Fatalf("Slug exceeds 50 chars: %d", len(got))
	}
	if strings.HasSuffix(got, "-") || strings.HasPrefix(got, "-") {
		t.Fatalf("Truncated slug has dangling hyphen: %q", got)
	}
}

func TestUniqueTaskName_SuffixOnCollision(t *testing.T) {
	st, err := core.NewSessionStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSessionStore failed: %v", err)
	}
	ctx := context.Background()

	name, err := UniqueTaskName(ctx, st, "Build auth system")
	if err != nil {
		t.Fatalf("UniqueTaskName failed: %v", err)
	}
	if name != "build-auth-system" {
		t.Fatalf("Expected build-auth-system, got %q", name)
	}

	// 占用映射表后同目标应得到 -2 后缀
	if err := st.InsertTaskMapping(ctx, &core.TaskMapping{
		SessionID: "s1", TaskName: name, Objective: "Build auth system",
	}); err != nil {
		t.Fatalf("InsertTaskMapping failed: %v", err)
	}
	name2, err := UniqueTaskName(ctx, st, "Build auth system")
	if err != nil {
		t.Fatalf("UniqueTaskName failed: %v", err)
	}
	if name2 != "build-auth-system-2" {
		t.Fatalf("Expected build-auth-system-2, got %q", name2)
	}

	// 产物目录残留（映射表没有记录）也必须触发避让
	if _, err := st.WriteArtifact(ctx, "build-auth-system-2", "prd.md", []byte("x")); err != nil {
		t.Fatalf("WriteArtifact failed: %v", err)
	}
	name3, err := UniqueTaskName(ctx, st, "Build auth system")
	if err != nil {
		t.Fatalf("UniqueTaskName failed: %v", err)
	}
	if name3 != "build-auth-system-3" {
		t.Fatalf("Expected build-auth-system-3, got %q", name3)
	}
}
