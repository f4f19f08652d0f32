package export

import (
	"encoding/xml"
	"fmt"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
)

// sarXML FinCEN 兼容的 XML 导出结构
type sarXML struct {
	XMLName xml.Name `xml:"SuspiciousActivityReport"`
	Version string   `xml:"version,attr"`
	XMLNS   string   `xml:"xmlns,attr"`

	CaseInformation struct {
		CaseID      string `xml:"CaseID"`
		FilingDate  string `xml:"FilingDate"`
		Institution string `xml:"Institution"`
		Status      string `xml:"Status"`
	} `xml:"CaseInformation"`

	CustomerInformation struct {
		Name       string `xml:"Name"`
		CustomerID string `xml:"CustomerID"`
		RiskLevel  string `xml:"RiskLevel"`
	} `xml:"CustomerInformation"`

	AnalysisResults struct {
		RiskScore             int       `xml:"RiskScore"`
		Typology              string    `xml:"Typology"`
		Narrative             string    `xml:"Narrative"`
		ComprehensiveAnalysis []xmlNode `xml:"ComprehensiveAnalysis>Section"`
	} `xml:"AnalysisResults"`

	AuditTrail struct {
		CreatedBy   string `xml:"CreatedBy"`
		CreatedDate string `xml:"CreatedDate"`
		LastUpdated string `xml:"LastUpdated,omitempty"`
	} `xml:"AuditTrail"`
}

type xmlNode struct {
	Name    string `xml:"name,attr"`
	Content string `xml:",chardata"`
}

// XML 将案件渲染为带缩进的 XML 文档
func XML(record *domain.SARRecord) ([]byte, error) {
	doc := sarXML{
		Version: "1.0",
		XMLNS:   "http://www.fincen.gov/sar",
	}

	doc.CaseInformation.CaseID = record.CaseID
	doc.CaseInformation.FilingDate = record.CreatedAt.Format("2006-01-02")
	doc.CaseInformation.Institution = institutionName
	doc.CaseInformation.Status = string(record.Status)

	doc.CustomerInformation.Name = record.CustomerName
	doc.CustomerInformation.CustomerID = record.CustomerID
	doc.CustomerInformation.RiskLevel = string(record.RiskLevel)

	doc.AnalysisResults.RiskScore = record.RiskScore
	doc.AnalysisResults.Typology = record.Typology
	doc.AnalysisResults.Narrative = record.Narrative
	for _, section := range analysisSections(record) {
		if section.Content == "" {
			continue
		}
		doc.AnalysisResults.ComprehensiveAnalysis = append(doc.AnalysisResults.ComprehensiveAnalysis, xmlNode{
			Name:    section.Name,
			Content: section.Content,
		})
	}

	doc.AuditTrail.CreatedBy = record.CreatedBy
	doc.AuditTrail.CreatedDate = record.CreatedAt.Format("2006-01-02T15:04:05Z07:00")
	doc.AuditTrail.LastUpdated = record.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal xml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
