package tools

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ========== 候选引擎配置 ==========
// 每阶段需要哪些引擎产出候选，内置默认，可被工作目录下的
// .bmad/engines.yaml 覆盖。每次调用都从磁盘读取，改完即生效。

// EngineClaude / EngineCodex 候选引擎名。双引擎阶段 A=claude、B=codex。
const (
	EngineClaude = "claude"
	EngineCodex  = "codex"
)

var defaultEngineSets = map[Stage][]string{
	StagePO:        {EngineClaude, EngineCodex},
	StageArchitect: {EngineClaude, EngineCodex},
	StageSM:        {EngineClaude},
	StageDev:       {EngineClaude},
	StageReviewer:  {EngineClaude},
	StageQA:        {EngineClaude},
}

type engineConfigFile struct {
	Engines map[string][]string `json:"engines" yaml:"engines"`
}

func engineConfigCandidates(workdir string) []string {
	if strings.TrimSpace(workdir) == "" {
		return nil
	}
	base := filepath.Join(workdir, ".bmad")
	return []string{
		filepath.Join(base, "engines.yaml"),
		filepath.Join(base, "engines.yml"),
	}
}

// EngineSetForStage 返回阶段的候选引擎集合
func EngineSetForStage(workdir string, stage Stage) []string {
	sets := loadEngineSets(workdir)
	if engines, ok := sets[stage]; ok && len(engines) > 0 {
		return engines
	}
	return defaultEngineSets[stage]
}

func loadEngineSets(workdir string) map[Stage][]string {
	out := make(map[Stage][]string, len(defaultEngineSets))
	for stage, engines := range defaultEngineSets {
		out[stage] = engines
	}

	for _, path := range engineConfigCandidates(workdir) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg engineConfigFile
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			// 配置损坏时沿用默认集合，不阻断工作流
			continue
		}
		for name, engines := range cfg.Engines {
			if len(engines) > 0 {
				out[Stage(name)] = engines
			}
		}
		break
	}

	return out
}
