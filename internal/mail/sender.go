// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package mail

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Sender delivers a rendered envelope.
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender delivers mail through an SMTP relay using PLAIN auth when
// credentials are configured.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("MAIL_INVALID_CONFIG").With("port", cfg.Port).Errorf("smtp port out of range")
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth: auth,
		send: smtp.SendMail,
	}, nil
}

// Send delivers env. The context is checked before dialing; net/smtp does
// not support cancellation mid-transfer.
func (s *SMTPSender) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_CANCELED").Wrap(err)
	}
	if err := s.send(s.addr, s.auth, env.From, []string{env.To}, buildMessage(env, time.Now())); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("addr", s.addr).
			With("to", env.To).
			Wrap(err)
	}
	return nil
}

// LogSender logs envelopes instead of delivering them. Used when no SMTP
// relay is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs env at info level.
func (s *LogSender) Send(ctx context.Context, env Envelope) error {
	s.logger.InfoContext(ctx, "mail not delivered, no smtp relay configured",
		"to", env.To,
		"subject", env.Subject)
	return nil
}

func buildMessage(env Envelope, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", env.From)
	fmt.Fprintf(&b, "To: %s\r\n", env.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", env.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(env.HTML)
	return []byte(b.String())
}
