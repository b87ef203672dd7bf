package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strconv"

	"codeberg.org/graphmirror/graphmirror/pkg/config"
)

// Mailer delivers report exports as CSV attachments over SMTP.
type Mailer struct {
	cfg  config.SMTPConfig
	addr string
	auth smtp.Auth

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Mailer{
		cfg:  cfg,
		addr: cfg.Host + ":" + strconv.Itoa(cfg.Port),
		auth: auth,
		send: smtp.SendMail,
	}
}

// IsConfigured reports whether SMTP delivery can be attempted.
func (m *Mailer) IsConfigured() bool {
	return m.cfg.Host != "" && m.cfg.Port != 0 && m.cfg.From != ""
}

// SendReport mails the CSV content to recipient as an attachment named
// filename. The subject carries the report's base name.
func (m *Mailer) SendReport(recipient, reportName, filename, csvContent string) error {
	if !m.IsConfigured() {
		return fmt.Errorf("smtp is not configured")
	}
	if recipient == "" {
		return fmt.Errorf("recipient address is required")
	}

	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.From)
	}

	subject := fmt.Sprintf("Directory report: %s", reportName)
	boundary := "graphmirror-report-boundary"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Attached is the requested report: %s\r\n", filename)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/csv; charset=UTF-8; name=\"%s\"\r\n", filename)
	fmt.Fprintf(&msg, "Content-Disposition: attachment; filename=\"%s\"\r\n", filename)
	fmt.Fprintf(&msg, "Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&msg, "\r\n")
	writeBase64Wrapped(&msg, []byte(csvContent))
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := m.send(m.addr, m.auth, m.cfg.From, []string{recipient}, msg.Bytes()); err != nil {
		return fmt.Errorf("send report email: %w", err)
	}
	return nil
}

// writeBase64Wrapped encodes data at 76 characters per line per MIME rules.
func writeBase64Wrapped(msg *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		msg.WriteString(encoded[:76])
		msg.WriteString("\r\n")
		encoded = encoded[76:]
	}
	if encoded != "" {
		msg.WriteString(encoded)
		msg.WriteString("\r\n")
	}
}
