// Package export SAR 案件导出适配器：CSV/XML/PDF 渲染与邮件投递。
// 仅消费组装完成的只读 SARRecord。
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
)

const institutionName = "Barclays Bank"

// analysisSections 导出时使用的段落标题与取值顺序
func analysisSections(record *domain.SARRecord) []struct{ Name, Content string } {
	return []struct{ Name, Content string }{
		{"Executive Summary", record.ExecutiveSummary},
		{"Extracted Facts", record.Facts},
		{"Red Flags Identified", record.RedFlags},
		{"Transaction Timeline", record.Timeline},
		{"Typology Confidence", record.TypologyConfidence},
		{"Evidence Mapping", record.EvidenceMap},
		{"Quality Assessment", record.QualityCheck},
		{"Contradiction Analysis", record.Contradictions},
		{"Regulatory Highlights", record.RegulatoryHighlights},
		{"PII Compliance Check", record.PIICheck},
		{"Reasoning Trace", record.ReasoningTraceDetailed},
		{"Recommended Actions", record.NextActions},
		{"Improvement Suggestions", record.Improvements},
	}
}

// CSV 将案件渲染为两列 Field/Value 格式的 CSV
func CSV(record *domain.SARRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"Field", "Value"},
		{"Case ID", record.CaseID},
		{"Customer Name", record.CustomerName},
		{"Customer ID", record.CustomerID},
		{"Status", string(record.Status)},
		{"Risk Level", strings.ToUpper(string(record.RiskLevel))},
		{"Risk Score", fmt.Sprintf("%d", record.RiskScore)},
		{"Typology", strings.ToUpper(record.Typology)},
		{"Created Date", record.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Created By", record.CreatedBy},
		{"Institution", institutionName},
		{},
		{"SAR Narrative", ""},
		{"", flatten(record.Narrative)},
	}

	for _, section := range analysisSections(record) {
		if section.Content == "" {
			continue
		}
		rows = append(rows,
			[]string{},
			[]string{section.Name, ""},
			[]string{"", flatten(section.Content)},
		)
	}

	rows = append(rows,
		[]string{},
		[]string{"Audit Trail", ""},
		[]string{"Filed By", record.CreatedBy},
		[]string{"Filing Date", record.CreatedAt.Format("2006-01-02 15:04:05 UTC")},
		[]string{"Last Modified", record.UpdatedAt.Format("2006-01-02 15:04:05 UTC")},
		[]string{"Current Status", strings.ToUpper(string(record.Status))},
	)

	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten 将多行文本压平为单行
func flatten(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}
