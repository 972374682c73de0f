package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/programisto-labs/edrm-mailer/internal/config"
	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

// Ensure SMTP implements domain.Sender
var _ domain.Sender = (*SMTP)(nil)

// SMTP delivers mail over the configured SMTP relay. A dialer is built per
// call because credentials may differ between calls.
type SMTP struct {
	cfg  config.Config
	http *http.Client
	log  zerolog.Logger
}

func NewSMTP(cfg config.Config, log zerolog.Logger) *SMTP {
	return &SMTP{cfg: cfg, http: &http.Client{Timeout: 30 * time.Second}, log: log}
}

func (s *SMTP) Send(ctx context.Context, creds domain.Credentials, mail domain.OutboundMail) (string, error) {
	d := gomail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, creds.User, creds.Password)
	if !s.cfg.SMTPStartTLS {
		// Implicit TLS (e.g. port 465) instead of STARTTLS.
		d.SSL = true
	}
	if s.cfg.SMTPInsecureTLS {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	msg := gomail.NewMessage()
	if s.cfg.SenderName != "" {
		msg.SetAddressHeader("From", mail.From, s.cfg.SenderName)
	} else {
		msg.SetHeader("From", mail.From)
	}
	msg.SetHeader("To", mail.To)
	msg.SetHeader("Subject", mail.Subject)
	msg.SetBody("text/html", mail.Body)

	for _, a := range mail.Attachments {
		content := a.Content
		if content == nil {
			// URL descriptors carry no bytes; fetch them here. A failed
			// fetch skips the attachment, never the send.
			fetched, err := s.fetchURL(ctx, a.URL)
			if err != nil {
				s.log.Warn().Err(err).Str("url", a.URL).Msg("skipping attachment: fetch failed")
				continue
			}
			content = fetched
		}
		name := a.Filename
		if name == "" {
			name = filenameFromURL(a.URL)
		}
		settings := []gomail.FileSetting{copyBytes(content)}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		msg.Attach(name, settings...)
	}

	if err := d.DialAndSend(msg); err != nil {
		return "", err
	}
	return fmt.Sprintf("accepted by %s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort), nil
}

func (s *SMTP) fetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch attachment: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func copyBytes(content []byte) gomail.FileSetting {
	return gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
}

func filenameFromURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return "attachment"
}
