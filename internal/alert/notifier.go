package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/telescope-hq/telescope/internal/domain"
)

// Notification carries everything a sender needs to notify recipients of
// one trigger decision.
type Notification struct {
	Rule        domain.AlertRule  `json:"rule"`
	Occurrence  domain.Occurrence `json:"occurrence"`
	TriggeredAt time.Time         `json:"triggered_at"`
}

// Subject renders the notification subject line.
func (n *Notification) Subject() string {
	switch n.Rule.Type {
	case domain.RuleNewError:
		return fmt.Sprintf("[telescope] new error in %s: %s", n.Occurrence.DSN, n.Occurrence.ErrorType)
	case domain.RuleErrorSpike:
		return fmt.Sprintf("[telescope] error spike in %s", n.Occurrence.DSN)
	default:
		return fmt.Sprintf("[telescope] error threshold reached in %s", n.Occurrence.DSN)
	}
}

// Sender dispatches a notification to the rule's recipients.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SMTPConfig configures the email sender.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// EmailSender delivers notifications over SMTP to email recipients.
type EmailSender struct {
	cfg    SMTPConfig
	logger *slog.Logger

	// send is swappable for tests.
	send func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg SMTPConfig, logger *slog.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, logger: logger, send: sendMail}
}

// sendMail is smtp.SendMail with a context: the dial honors cancellation
// and the connection inherits the context deadline, so a hung SMTP server
// cannot tie up a dispatcher worker past its send timeout.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	host := addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}

	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *EmailSender) Send(ctx context.Context, n Notification) error {
	to := emailRecipients(n.Rule.Recipients)
	if len(to) == 0 {
		return nil
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n\r\n", n.Subject())
	fmt.Fprintf(&body, "Rule: %s (%s)\r\n", n.Rule.Name, n.Rule.Type)
	fmt.Fprintf(&body, "Project: %s\r\n", n.Occurrence.DSN)
	fmt.Fprintf(&body, "Error: %s\r\n", n.Occurrence.Message)
	fmt.Fprintf(&body, "Fingerprint: %s\r\n", n.Occurrence.Fingerprint)
	fmt.Fprintf(&body, "Occurrences: %d\r\n", n.Occurrence.Count)
	fmt.Fprintf(&body, "Triggered: %s\r\n", n.TriggeredAt.Format(time.RFC3339))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		host := s.cfg.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)
	}

	if err := s.send(ctx, s.cfg.Addr, auth, s.cfg.From, to, body.Bytes()); err != nil {
		return fmt.Errorf("sending alert email: %w", err)
	}

	s.logger.Info("alert email sent", "rule_id", n.Rule.ID, "recipients", len(to))
	return nil
}

// WebhookSender POSTs the notification as JSON to every URL recipient,
// signed with HMAC-SHA256 so receivers can verify origin. With a breaker
// attached, endpoints that keep failing are skipped until they recover.
type WebhookSender struct {
	httpClient *http.Client
	secret     string
	breaker    *Breaker
	logger     *slog.Logger
}

func NewWebhookSender(secret string, breaker *Breaker, logger *slog.Logger) *WebhookSender {
	return &WebhookSender{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		secret:     secret,
		breaker:    breaker,
		logger:     logger,
	}
}

func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	urls := urlRecipients(n.Rule.Recipients)
	if len(urls) == 0 {
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	signature := computeHMAC(payload, s.secret)

	var firstErr error
	for _, url := range urls {
		if s.breaker != nil && !s.breaker.Allow(ctx, url) {
			s.logger.Warn("alert webhook skipped, circuit open", "url", url)
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Telescope-Signature", signature)
		req.Header.Set("X-Telescope-Rule", n.Rule.ID)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.logger.Warn("alert webhook failed", "error", err, "url", url)
			if s.breaker != nil {
				s.breaker.RecordFailure(ctx, url)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			s.logger.Warn("alert webhook rejected", "status", resp.StatusCode, "url", url)
			if s.breaker != nil {
				s.breaker.RecordFailure(ctx, url)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("webhook %s returned %d", url, resp.StatusCode)
			}
			continue
		}
		if s.breaker != nil {
			s.breaker.RecordSuccess(ctx, url)
		}
	}
	return firstErr
}

// MultiSender fans a notification out to several senders; the first error
// is reported after every sender has run.
type MultiSender []Sender

func (m MultiSender) Send(ctx context.Context, n Notification) error {
	var firstErr error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func emailRecipients(recipients []string) []string {
	var out []string
	for _, r := range recipients {
		if !strings.HasPrefix(r, "http://") && !strings.HasPrefix(r, "https://") {
			out = append(out, r)
		}
	}
	return out
}

func urlRecipients(recipients []string) []string {
	var out []string
	for _, r := range recipients {
		if strings.HasPrefix(r, "http://") || strings.HasPrefix(r, "https://") {
			out = append(out, r)
		}
	}
	return out
}

func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
