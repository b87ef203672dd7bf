package report

import (
	"encoding/base64"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/graphmirror/graphmirror/pkg/config"
)

func TestSendReportBuildsAttachment(t *testing.T) {
	m := NewMailer(config.SMTPConfig{
		Host:     "smtp.contoso.com",
		Port:     587,
		From:     "reports@contoso.com",
		FromName: "Directory Mirror Reports",
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	csvContent := "id,displayName\nu1,Dana Reyes\n"
	err := m.SendReport("admin@contoso.com", "all_users_report", "all_users_report_2026-09-01_12-00-00.csv", csvContent)
	require.NoError(t, err)

	assert.Equal(t, "smtp.contoso.com:587", gotAddr)
	assert.Equal(t, "reports@contoso.com", gotFrom)
	assert.Equal(t, []string{"admin@contoso.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: Directory report: all_users_report")
	assert.Contains(t, msg, "From: Directory Mirror Reports <reports@contoso.com>")
	assert.Contains(t, msg, `filename="all_users_report_2026-09-01_12-00-00.csv"`)

	// The attachment body round-trips through base64.
	parts := strings.Split(msg, "Content-Transfer-Encoding: base64\r\n\r\n")
	require.Len(t, parts, 2)
	encoded := strings.Split(parts[1], "\r\n--")[0]
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(encoded, "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, csvContent, string(decoded))
}

func TestSendReportRequiresConfiguration(t *testing.T) {
	m := NewMailer(config.SMTPConfig{})
	err := m.SendReport("admin@contoso.com", "all_users_report", "r.csv", "a,b\n")
	assert.Error(t, err)
}

func TestSendReportRequiresRecipient(t *testing.T) {
	m := NewMailer(config.SMTPConfig{
		Host: "smtp.contoso.com",
		Port: 587,
		From: "reports@contoso.com",
	})
	err := m.SendReport("", "all_users_report", "r.csv", "a,b\n")
	assert.Error(t, err)
}
