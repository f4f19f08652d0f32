package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 每个阶段声明的依赖必须真的进入其提示，反过来提示也不得引用
// 未声明的阶段输出（编排器快照只拷贝声明的依赖，未声明的恒为空串）。
func TestStagePromptsConsumeDeclaredDependencies(t *testing.T) {
	outputs := make(map[Stage]string, len(stageGraph))
	for _, spec := range stageGraph {
		outputs[spec.stage] = fmt.Sprintf("<<output:%s>>", spec.stage)
	}

	for _, spec := range stageGraph {
		pc := &PromptContext{
			CaseText: "<<case-text>>",
			Rules:    "<<rules>>",
			outputs:  outputs,
		}
		prompt := spec.prompt(pc)
		require.NotEmpty(t, prompt, "stage %s", spec.stage)

		declared := make(map[Stage]bool, len(spec.dependsOn))
		for _, dep := range spec.dependsOn {
			declared[dep] = true
			assert.Contains(t, prompt, string("<<output:"+dep+">>"),
				"stage %s declares %s but its prompt never uses it", spec.stage, dep)
		}
		for stage := range outputs {
			if declared[stage] || stage == spec.stage {
				continue
			}
			assert.NotContains(t, prompt, string("<<output:"+stage+">>"),
				"stage %s reads %s without declaring the dependency", spec.stage, stage)
		}
	}
}

func TestReasoningTracePromptCoversAllAnalysisStages(t *testing.T) {
	outputs := make(map[Stage]string, len(stageGraph))
	for _, spec := range stageGraph {
		outputs[spec.stage] = fmt.Sprintf("<<output:%s>>", spec.stage)
	}
	pc := &PromptContext{outputs: outputs}
	prompt := reasoningTracePrompt(pc)

	analysis := []Stage{
		StageFacts, StageRedFlags, StageTimeline, StageTypologyConfidence,
		StageEvidenceMap, StageQualityCheck, StageContradictions,
		StageRegulatoryHighlights, StageNextActions, StageImprovements,
		StagePIICheck,
	}
	for _, stage := range analysis {
		assert.Contains(t, prompt, string("<<output:"+stage+">>"), "stage %s", stage)
	}
	// 叙述阶段不属于推理轨迹的输入
	assert.False(t, strings.Contains(prompt, string("<<output:"+StageNarrativeDraft+">>")))
}
