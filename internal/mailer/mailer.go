package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/authsvc/internal/logging"
)

// SMTP delivers activation links through a mail relay.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Site     string

	// Timeout bounds one delivery on top of the caller's context. Zero leaves only the context.
	Timeout time.Duration
}

func NewSMTP(host string, port int, username, password, from, site string) *SMTP {
	return &SMTP{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		Site:     site,
		Timeout:  10 * time.Second,
	}
}

var activationBody = template.Must(template.New("activation").Parse(
	`<div><h1>To activate your account follow the link</h1><a href="{{.}}">{{.}}</a></div>`))

func (m *SMTP) SendActivationMail(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.activationMessage(to, link)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	if err := m.deliver(ctx, addr, auth, to, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// deliver runs one SMTP transaction. Once ctx is done the connection deadline is
// moved into the past, so a relay that stops answering fails the send.
func (m *SMTP) deliver(ctx context.Context, addr string, auth smtp.Auth, to string, msg []byte) (err error) {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()
	defer func() {
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
	}()

	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			return err
		}
	}
	if auth != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("relay does not support AUTH")
		}
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(m.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
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

func (m *SMTP) activationMessage(to, link string) ([]byte, error) {
	var body bytes.Buffer
	if err := activationBody.Execute(&body, link); err != nil {
		return nil, fmt.Errorf("render activation mail: %w", err)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: Account activation on %s\r\n", m.Site)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())
	msg.WriteString("\r\n")
	return []byte(msg.String()), nil
}

// Log writes activation links to the request logger. Used when no SMTP relay is configured.
type Log struct{}

func (Log) SendActivationMail(ctx context.Context, to, link string) error {
	logging.FromContext(ctx).Info("activation mail not delivered, no smtp relay", "to", to, "link", link)
	return nil
}
