package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
)

// RiskProfile 综合器输出
type RiskProfile struct {
	Score    int
	Level    domain.RiskLevel
	Typology string
}

// severityKeywords 红旗文本中的风险关键词权重，每个最多计一次
var severityKeywords = map[string]int{
	"structuring":         15,
	"layering":            15,
	"smurfing":            12,
	"shell":               12,
	"politically exposed": 12,
	"pep":                 10,
	"offshore":            10,
	"threshold":           10,
	"rapid":               8,
	"velocity":            6,
	"wire":                5,
	"cash":                5,
	"foreign":             5,
	"dormant":             4,
	"unusual":             4,
	"suspicious":          4,
}

// typologyLabels 可识别的类型学标签，按特异性排序
var typologyLabels = []string{
	"Trade-Based ML",
	"Funnel Account",
	"Rapid Fund Movement",
	"Shell Company",
	"Mule Account",
	"Structuring",
	"Layering",
	"Smurfing",
}

var confidencePattern = regexp.MustCompile(`(\d{1,3})\s*%`)

// Synthesize 由红旗与类型学置信阶段的文本推导风险画像。
// 对相同的阶段文本结果完全确定，不做任何模型调用。
func Synthesize(run *RunResult) RiskProfile {
	redFlags := run.Text(StageRedFlags)
	typology := run.Text(StageTypologyConfidence)

	score := keywordScore(redFlags) + bulletScore(redFlags) + confidenceScore(typology)
	if score > 100 {
		score = 100
	}

	return RiskProfile{
		Score:    score,
		Level:    RiskLevelFor(score),
		Typology: ExtractTypology(typology),
	}
}

// RiskLevelFor 分数到风险等级的映射
func RiskLevelFor(score int) domain.RiskLevel {
	switch {
	case score >= 75:
		return domain.RiskCritical
	case score >= 50:
		return domain.RiskHigh
	case score >= 25:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// ExtractTypology 从置信阶段文本中提取类型学标签，未命中返回 Unknown
func ExtractTypology(text string) string {
	lower := strings.ToLower(text)
	for _, label := range typologyLabels {
		if strings.Contains(lower, strings.ToLower(label)) {
			return label
		}
	}
	return "Unknown"
}

// keywordScore 红旗文本中的关键词严重度得分，上限 60
func keywordScore(redFlags string) int {
	lower := strings.ToLower(redFlags)
	score := 0
	for keyword, weight := range severityKeywords {
		if strings.Contains(lower, keyword) {
			score += weight
		}
	}
	if score > 60 {
		score = 60
	}
	return score
}

// bulletScore 按红旗条目数计分，每条 3 分，上限 15
func bulletScore(redFlags string) int {
	count := 0
	for _, line := range strings.Split(redFlags, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "•") || strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
			count++
		}
	}
	score := count * 3
	if score > 15 {
		score = 15
	}
	return score
}

// confidenceScore 从类型学置信文本中提取百分比，折算为 0-25 分
func confidenceScore(typology string) int {
	match := confidencePattern.FindStringSubmatch(typology)
	if match == nil {
		return 0
	}
	pct, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct / 4
}
