package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
)

// 简易 PDF 1.4 写出器：Letter 纵向、Helvetica 单字体、逐行排版。
// 监管导出只要求可读的纯文本报告，不需要完整排版引擎。

const (
	pdfPageWidth  = 612
	pdfPageHeight = 792
	pdfMargin     = 72
	pdfLineHeight = 14
	pdfFontSize   = 10
	pdfTitleSize  = 16
	pdfLineChars  = 88
)

// PDF 将案件渲染为 PDF 文档
func PDF(record *domain.SARRecord) ([]byte, error) {
	lines := buildReportLines(record)
	pages := paginate(lines)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	// 对象编号：1 catalog, 2 pages, 3 font, 4.. 每页两个对象（page + content）
	offsets := make(map[int]int)
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	pageCount := len(pages)
	kids := make([]string, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+i*2))
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pageCount))
	writeObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, page := range pages {
		pageNum := 4 + i*2
		contentNum := pageNum + 1

		writeObj(pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>",
			pdfPageWidth, pdfPageHeight, contentNum))

		stream := renderPage(page)
		writeObj(contentNum, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream))
	}

	// xref 表
	totalObjs := 3 + pageCount*2
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", totalObjs+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= totalObjs; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", totalObjs+1, xrefOffset)

	return buf.Bytes(), nil
}

// reportLine 单行文本与其字号
type reportLine struct {
	text  string
	size  int
	space bool
}

func buildReportLines(record *domain.SARRecord) []reportLine {
	var lines []reportLine

	title := func(s string) {
		lines = append(lines, reportLine{text: s, size: pdfTitleSize}, reportLine{space: true})
	}
	heading := func(s string) {
		lines = append(lines, reportLine{space: true}, reportLine{text: s, size: 12})
	}
	body := func(s string) {
		for _, line := range wrapText(s, pdfLineChars) {
			lines = append(lines, reportLine{text: line, size: pdfFontSize})
		}
	}

	title("SUSPICIOUS ACTIVITY REPORT")
	body(fmt.Sprintf("Case ID: %s", record.CaseID))
	body(fmt.Sprintf("Institution: %s", institutionName))
	body(fmt.Sprintf("Filing Date: %s", record.CreatedAt.Format("2006-01-02")))
	body(fmt.Sprintf("Status: %s", strings.ToUpper(string(record.Status))))
	body(fmt.Sprintf("Risk: %s (score %d)", strings.ToUpper(string(record.RiskLevel)), record.RiskScore))
	body(fmt.Sprintf("Typology: %s", record.Typology))

	heading("Customer Information")
	body(fmt.Sprintf("Name: %s", record.CustomerName))
	body(fmt.Sprintf("Customer ID: %s", record.CustomerID))
	body(fmt.Sprintf("Account: %s", record.CustomerAccount))

	heading("SAR Narrative")
	body(record.Narrative)

	for _, section := range analysisSections(record) {
		if section.Content == "" {
			continue
		}
		heading(section.Name)
		body(section.Content)
	}

	heading("Audit Trail")
	body(fmt.Sprintf("Created By: %s", record.CreatedBy))
	body(fmt.Sprintf("Created: %s", record.CreatedAt.Format("2006-01-02 15:04:05 UTC")))
	body(fmt.Sprintf("Last Modified: %s", record.UpdatedAt.Format("2006-01-02 15:04:05 UTC")))

	return lines
}

func paginate(lines []reportLine) [][]reportLine {
	perPage := (pdfPageHeight - 2*pdfMargin) / pdfLineHeight
	var pages [][]reportLine
	for start := 0; start < len(lines); start += perPage {
		end := start + perPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, lines[start:end])
	}
	if len(pages) == 0 {
		pages = append(pages, nil)
	}
	return pages
}

func renderPage(lines []reportLine) string {
	var sb strings.Builder
	sb.WriteString("BT\n")
	y := pdfPageHeight - pdfMargin
	for _, line := range lines {
		y -= pdfLineHeight
		if line.space || line.text == "" {
			continue
		}
		size := line.size
		if size <= 0 {
			size = pdfFontSize
		}
		fmt.Fprintf(&sb, "/F1 %d Tf\n1 0 0 1 %d %d Tm\n(%s) Tj\n", size, pdfMargin, y, escapePDF(line.text))
	}
	sb.WriteString("ET\n")
	return sb.String()
}

// wrapText 按词换行
func wrapText(s string, width int) []string {
	var out []string
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, paragraph := range strings.Split(s, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len(current)+1+len(word) > width {
				out = append(out, current)
				current = word
				continue
			}
			current += " " + word
		}
		out = append(out, current)
	}
	return out
}

// escapePDF 转义 PDF 字符串定界符，并把非 ASCII 字符替换为占位
func escapePDF(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '(' || r == ')' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r < 32 || r > 126:
			sb.WriteByte('?')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
