package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/report"
	"github.com/dealerdiff/dealerdiff/internal/utils"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailWriter sends the html report by email. Bcc recipients receive the
// mail without being listed in the headers.
type EmailWriter struct {
	*config.WriterConfig
	user     string
	password string
	appName  string
	send     sendFunc
	logger   *slog.Logger
}

// NewEmailWriter returns a new EmailWriter
func NewEmailWriter(wc *config.WriterConfig, creds config.Credentials, appName string) (*EmailWriter, error) {
	if wc.SMTPHost == "" || wc.From == "" || len(utils.SplitList(wc.To)) == 0 {
		return nil, errors.New("smtp_host, from and to need to be specified for the EmailWriter")
	}
	if wc.SMTPPort == 0 {
		wc.SMTPPort = 587
	}
	user := creds.SMTPUser
	if user == "" {
		user = wc.From
	}
	if appName == "" {
		appName = "dealerdiff"
	}
	return &EmailWriter{
		WriterConfig: wc,
		user:         user,
		password:     creds.SMTPPassword,
		appName:      appName,
		send:         smtp.SendMail,
		logger:       slog.With(slog.String("writer", EMAIL_WRITER_TYPE)),
	}, nil
}

func (w *EmailWriter) Write(ctx context.Context, r *report.Report) error {
	html, err := r.HTML()
	if err != nil {
		return err
	}
	to := utils.SplitList(w.To)
	recipients := append(to, utils.SplitList(w.Bcc)...)
	msg := w.message(to, r.Subject(w.Subject), "text/html", html)
	if err := w.sendMail(recipients, msg); err != nil {
		return err
	}
	w.logger.Info(fmt.Sprintf("sent report to %d recipients", len(recipients)))
	return nil
}

// WriteError sends a plain text notification to the to recipients only.
func (w *EmailWriter) WriteError(ctx context.Context, runErr error) error {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	body := fmt.Sprintf("An error occurred in the %s application at %s\n\n%v", w.appName, timestamp, runErr)
	to := utils.SplitList(w.To)
	msg := w.message(to, "[Error] - "+w.Subject, "text/plain", body)
	if err := w.sendMail(to, msg); err != nil {
		return err
	}
	w.logger.Info("sent error notification")
	return nil
}

func (w *EmailWriter) sendMail(recipients []string, msg []byte) error {
	addr := net.JoinHostPort(w.SMTPHost, strconv.Itoa(w.SMTPPort))
	var auth smtp.Auth
	if w.password != "" {
		auth = smtp.PlainAuth("", w.user, w.password, w.SMTPHost)
	}
	if err := w.send(addr, auth, w.From, recipients, msg); err != nil {
		return fmt.Errorf("error while sending email via %s: %w", addr, err)
	}
	return nil
}

func (w *EmailWriter) message(to []string, subject, contentType, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", w.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ","))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s; charset=\"UTF-8\"\r\n", contentType)
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}
