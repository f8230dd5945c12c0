// Package mail implements a minimal SMTP client speaking the wire protocol
// directly: greeting, EHLO, opportunistic STARTTLS upgrade, AUTH LOGIN,
// envelope exchange, and DATA framing. One connection per message, no
// retries; retry policy belongs to the caller.
package mail

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/kuroedu/kuro-backend/internal/config"
)

// localHostname is announced in the EHLO command.
const localHostname = "kuro-backend.local"

// ProtocolError reports an SMTP reply with a failure status code (>= 400).
// It carries the raw server response text.
type ProtocolError struct {
	Code     int
	Response string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("smtp: server replied %d: %s", e.Code, strings.TrimSpace(e.Response))
}

// TransportError reports a network-level failure during the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("smtp: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport delivers HTML mail over a dedicated SMTP conversation.
type Transport struct {
	cfg       config.SMTPConfig
	tlsConfig *tls.Config
}

// New creates a transport for the given server settings.
func New(cfg config.SMTPConfig) *Transport {
	return &Transport{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host},
	}
}

// WithTLSConfig replaces the client TLS settings used for implicit TLS dials
// and STARTTLS upgrades, for servers signed by a private root.
func (t *Transport) WithTLSConfig(cfg *tls.Config) *Transport {
	t.tlsConfig = cfg
	return t
}

// SendMail delivers a single HTML message to one recipient. The session is
// strictly forward-moving: any failure response or network error aborts the
// whole operation.
func (t *Transport) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	var (
		conn net.Conn
		err  error
	)
	if t.cfg.Secure {
		tlsDialer := &tls.Dialer{Config: t.tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return &TransportError{Op: "connect " + addr, Err: err}
	}

	s := &session{conn: conn, reader: bufio.NewReader(conn)}
	// Close whatever conn the session ends on, so an upgraded TLS layer
	// gets its close_notify instead of a teardown of the raw socket.
	defer func() { s.conn.Close() }()

	// Server speaks first.
	if _, err := s.readResponse(); err != nil {
		return err
	}

	ehlo, err := s.command("EHLO %s", localHostname)
	if err != nil {
		return err
	}

	if !t.cfg.Secure && advertisesStartTLS(ehlo) {
		if _, err := s.command("STARTTLS"); err != nil {
			return err
		}
		// Upgrade the live TCP stream in place, then re-greet as the
		// protocol requires after the security layer changes.
		tlsConn := tls.Client(conn, t.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return &TransportError{Op: "starttls handshake", Err: err}
		}
		s.conn = tlsConn
		s.reader = bufio.NewReader(tlsConn)
		if _, err := s.command("EHLO %s", localHostname); err != nil {
			return err
		}
	}

	if _, err := s.command("AUTH LOGIN"); err != nil {
		return err
	}
	if _, err := s.command("%s", base64.StdEncoding.EncodeToString([]byte(t.cfg.User))); err != nil {
		return err
	}
	if _, err := s.command("%s", base64.StdEncoding.EncodeToString([]byte(t.cfg.Pass))); err != nil {
		return err
	}

	if _, err := s.command("MAIL FROM:<%s>", t.cfg.From); err != nil {
		return err
	}
	if _, err := s.command("RCPT TO:<%s>", to); err != nil {
		return err
	}
	if _, err := s.command("DATA"); err != nil {
		return err
	}

	message := strings.Join([]string{
		"From: " + t.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
		"",
		htmlBody,
		".",
		"",
	}, "\r\n")

	if err := s.write(message); err != nil {
		return err
	}
	if _, err := s.readResponse(); err != nil {
		return err
	}

	if _, err := s.command("QUIT"); err != nil {
		return err
	}
	return nil
}

// session is one SMTP conversation over a (possibly upgraded) connection.
type session struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (s *session) write(payload string) error {
	if _, err := s.conn.Write([]byte(payload)); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// command sends one command line and reads its response.
func (s *session) command(format string, args ...any) (string, error) {
	if err := s.write(fmt.Sprintf(format, args...) + "\r\n"); err != nil {
		return "", err
	}
	return s.readResponse()
}

// readResponse accumulates reply lines until the terminal line appears.
// Multi-line replies use "250-..." continuations; only a line shaped
// "250 ..." (three digits then a space) completes the response. The status
// code of the first line decides success, matching how the reply is graded
// by the servers we talk to.
func (s *session) readResponse() (string, error) {
	var b strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return "", &TransportError{Op: "read response", Err: err}
		}
		b.WriteString(line)

		trimmed := strings.TrimRight(line, "\r\n")
		if isTerminalLine(trimmed) {
			break
		}
	}

	response := b.String()
	code, err := strconv.Atoi(response[:3])
	if err != nil {
		return "", &ProtocolError{Code: 0, Response: response}
	}
	if code >= 400 {
		return "", &ProtocolError{Code: code, Response: response}
	}
	return response, nil
}

func isTerminalLine(line string) bool {
	if len(line) < 4 {
		return false
	}
	for _, c := range line[:3] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return line[3] == ' '
}

func advertisesStartTLS(ehloResponse string) bool {
	return strings.Contains(strings.ToUpper(ehloResponse), "STARTTLS")
}
