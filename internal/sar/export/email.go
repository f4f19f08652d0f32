package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/pkg/config"
)

// EmailSender 通过 SMTP 把导出的报告作为附件投递给监管联系人。
type EmailSender struct {
	cfg config.SMTPConfig
}

func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

// Send 发送带单个附件的报告邮件
func (s *EmailSender) Send(record *domain.SARRecord, recipient, filename string, attachment []byte, contentType string) error {
	if recipient == "" {
		return fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}
	if s.cfg.Host == "" {
		return fmt.Errorf("%w: smtp is not configured", domain.ErrBackendUnavailable)
	}

	msg, err := s.buildMessage(record, recipient, filename, attachment, contentType)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("%w: smtp send failed: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *EmailSender) buildMessage(record *domain.SARRecord, recipient, filename string, attachment []byte, contentType string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	subject := fmt.Sprintf("SAR Filing %s - %s", record.CaseID, record.CustomerName)
	fmt.Fprintf(&buf, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", recipient)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", "text/plain; charset=utf-8")
	bodyPart, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("build email body: %w", err)
	}
	fmt.Fprintf(bodyPart, "Please find attached the suspicious activity report for case %s.\r\n\r\n", record.CaseID)
	fmt.Fprintf(bodyPart, "Customer: %s (%s)\r\n", record.CustomerName, record.CustomerID)
	fmt.Fprintf(bodyPart, "Risk: %s (score %d)\r\n", strings.ToUpper(string(record.RiskLevel)), record.RiskScore)
	fmt.Fprintf(bodyPart, "Status: %s\r\n", record.Status)
	fmt.Fprintf(bodyPart, "\r\nThis message was generated by the %s AML case management system.\r\n", institutionName)

	attachHeader := textproto.MIMEHeader{}
	attachHeader.Set("Content-Type", contentType)
	attachHeader.Set("Content-Transfer-Encoding", "base64")
	attachHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	attachPart, err := writer.CreatePart(attachHeader)
	if err != nil {
		return nil, fmt.Errorf("build email attachment: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 0 {
		n := 76
		if n > len(encoded) {
			n = len(encoded)
		}
		attachPart.Write([]byte(encoded[:n]))
		attachPart.Write([]byte("\r\n"))
		encoded = encoded[n:]
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize email message: %w", err)
	}
	return buf.Bytes(), nil
}
