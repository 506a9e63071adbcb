package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ScriptSender posts the form as JSON to a hosted script endpoint.
type ScriptSender struct {
	URL    string
	Client *http.Client
}

// NewScriptSender returns a sender with a bounded HTTP client.
func NewScriptSender(url string) *ScriptSender {
	return &ScriptSender{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

type scriptPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (s *ScriptSender) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(scriptPayload{Name: m.Name, Email: m.Email, Message: m.Body})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: script endpoint returned %s", ErrDelivery, resp.Status)
	}
	return nil
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender mails the message with plain auth.
type SMTPSender struct {
	Host string
	Port string
	User string
	Pass string
	To   string

	// SendMail defaults to smtp.SendMail.
	SendMail SendMailFunc
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if s.User == "" || s.Pass == "" {
		return fmt.Errorf("%w: SMTP credentials not configured", ErrDelivery)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	send := s.SendMail
	if send == nil {
		send = smtp.SendMail
	}

	auth := smtp.PlainAuth("", s.User, s.Pass, s.Host)
	if err := send(s.Host+":"+s.Port, auth, s.User, []string{s.To}, s.compose(m)); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

func (s *SMTPSender) compose(m Message) []byte {
	name := headerSafe(m.Name)
	subject := fmt.Sprintf("Portfolio Contact: %s", name)
	body := fmt.Sprintf(`
New contact form submission from your portfolio:

Name: %s
Email: %s
Message:
%s

---
Sent from your portfolio contact form (%s)
`, name, m.Email, m.Body, m.ID)

	return []byte("To: " + s.To + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"From: " + s.User + "\r\n" +
		"Reply-To: " + headerSafe(m.Email) + "\r\n" +
		"\r\n" +
		body + "\r\n")
}

// headerSafe drops line breaks so form input cannot add mail headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// NopSender only logs. Used when no backend is configured.
type NopSender struct {
	Log *zap.Logger
}

func (s NopSender) Send(_ context.Context, m Message) error {
	if s.Log != nil {
		s.Log.Info("contact message not delivered, no backend configured",
			zap.String("id", m.ID),
			zap.String("name", m.Name),
		)
	}
	return nil
}
