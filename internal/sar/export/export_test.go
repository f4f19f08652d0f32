package export

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/pkg/config"
)

func sampleRecord() *domain.SARRecord {
	created := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	return &domain.SARRecord{
		Model:  gorm.Model{CreatedAt: created, UpdatedAt: created},
		CaseID: "SAR-TEST42",

		CustomerID:   "CUST-1",
		CustomerName: "Jane Doe",

		TransactionCount: 2,
		TotalAmount:      decimal.NewFromInt(18900),
		AlertReason:      "structuring pattern",

		RiskScore: 59,
		RiskLevel: domain.RiskHigh,
		Typology:  "Structuring",

		Status: domain.StatusApproved,

		Narrative:        "The subject conducted repeated\ncash deposits below the threshold.",
		ExecutiveSummary: "Two deposits just under $10,000.",
		Facts:            "- 2 deposits totaling $18,900",
		RedFlags:         "- amounts below reporting threshold",

		CreatedBy: "user-1",
	}
}

func TestCSVLayout(t *testing.T) {
	data, err := CSV(sampleRecord())
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)

	require.Equal(t, []string{"Field", "Value"}, rows[0])
	assert.Equal(t, []string{"Case ID", "SAR-TEST42"}, rows[1])

	content := string(data)
	assert.Contains(t, content, "HIGH")
	assert.Contains(t, content, "Barclays Bank")
	assert.Contains(t, content, "Executive Summary")
	// 空白段落被省略
	assert.NotContains(t, content, "Reasoning Trace")
	// 叙述被展平为单行
	assert.Contains(t, content, "repeated cash deposits")
}

func TestXMLDocument(t *testing.T) {
	data, err := XML(sampleRecord())
	require.NoError(t, err)

	content := string(data)
	assert.True(t, strings.HasPrefix(content, xml.Header))
	assert.Contains(t, content, `xmlns="http://www.fincen.gov/sar"`)

	var doc sarXML
	require.NoError(t, xml.Unmarshal(data, &doc))
	assert.Equal(t, "SAR-TEST42", doc.CaseInformation.CaseID)
	assert.Equal(t, "Jane Doe", doc.CustomerInformation.Name)
	assert.Equal(t, 59, doc.AnalysisResults.RiskScore)
	assert.NotEmpty(t, doc.AnalysisResults.ComprehensiveAnalysis)
}

func TestPDFStructure(t *testing.T) {
	data, err := PDF(sampleRecord())
	require.NoError(t, err)

	content := string(data)
	assert.True(t, strings.HasPrefix(content, "%PDF-1.4"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(content), "%%EOF"))
	assert.Contains(t, content, "SUSPICIOUS ACTIVITY REPORT")
	assert.Contains(t, content, "SAR-TEST42")
	// xref 表引用全部对象
	assert.Contains(t, content, "xref")
	assert.Contains(t, content, "trailer")
}

func TestPDFLongNarrativePaginates(t *testing.T) {
	record := sampleRecord()
	record.Narrative = strings.Repeat("A lengthy sentence describing the suspicious transaction pattern in detail. ", 200)

	data, err := PDF(record)
	require.NoError(t, err)
	// 多页文档包含多个 Page 对象
	assert.Greater(t, strings.Count(string(data), "/Type /Page "), 1)
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five", 10)
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 10)
	}
	assert.Equal(t, "one two three four five", strings.Join(lines, " "))
}

func TestEscapePDF(t *testing.T) {
	assert.Equal(t, `\(amounts\)`, escapePDF("(amounts)"))
	assert.Equal(t, `back\\slash`, escapePDF(`back\slash`))
	assert.Equal(t, "caf?", escapePDF("café"))
}

func TestEmailSenderValidation(t *testing.T) {
	sender := NewEmailSender(config.SMTPConfig{})

	err := sender.Send(sampleRecord(), "", "SAR.pdf", []byte("x"), "application/pdf")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = sender.Send(sampleRecord(), "fiu@example.gov", "SAR.pdf", []byte("x"), "application/pdf")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestEmailMessageFormat(t *testing.T) {
	sender := NewEmailSender(config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "aml-reporting@example.com",
	})

	msg, err := sender.buildMessage(sampleRecord(), "fiu@example.gov", "SAR_SAR-TEST42.pdf", []byte("fake-pdf-bytes"), "application/pdf")
	require.NoError(t, err)

	content := string(msg)
	assert.Contains(t, content, "To: fiu@example.gov")
	assert.Contains(t, content, "Subject: SAR Filing SAR-TEST42 - Jane Doe")
	assert.Contains(t, content, "multipart/mixed")
	assert.Contains(t, content, `attachment; filename="SAR_SAR-TEST42.pdf"`)
	assert.Contains(t, content, "Content-Transfer-Encoding: base64")
}
