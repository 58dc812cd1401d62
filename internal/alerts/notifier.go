package alerts

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Error taxonomy. Callers branch on these to log the right failure class;
// none of them triggers a retry, the next event will try again.
var (
	ErrAuthFailed = errors.New("smtp authentication failed")
	ErrTransport  = errors.New("smtp transport failed")
)

// IsAuthFailure reports whether err is a credential rejection.
func IsAuthFailure(err error) bool { return errors.Is(err, ErrAuthFailed) }

// IsTransportFailure reports whether err is a connection or protocol error.
func IsTransportFailure(err error) bool { return errors.Is(err, ErrTransport) }

// SendTimeout bounds one SMTP conversation end to end.
const SendTimeout = 10 * time.Second

// Config holds SMTP credentials. Password is an app password, not the
// account password.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Notifier delivers alert emails over SMTP with STARTTLS.
type Notifier struct {
	cfg Config

	// send is swapped in tests; production uses the STARTTLS dialer.
	send func(ctx context.Context, to string, msg []byte) error
}

func NewNotifier(cfg Config) *Notifier {
	n := &Notifier{cfg: cfg}
	n.send = n.sendSMTP
	return n
}

// Message is one alert to deliver.
type Message struct {
	To           string
	ListenerName string
	ProjectName  string
	Body         string
}

// BuildSubject renders the fixed alert subject.
func BuildSubject(listenerName string) string {
	return "Alert: " + listenerName
}

// BuildBody renders the alert body. Everything is boilerplate except the
// single substitutable line in the middle.
func BuildBody(projectName, message string) string {
	var b strings.Builder
	b.WriteString("This is an automated alert from your video monitoring system.\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Automated message from %s: %s\r\n", projectName, message)
	b.WriteString("\r\n")
	b.WriteString("Please review the attached event in your dashboard.\r\n")
	b.WriteString("Do not reply to this email.\r\n")
	return b.String()
}

// Send delivers one alert. No retries: a failed alert is logged by the
// caller and superseded by the next event.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("alert recipient is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		n.cfg.From, msg.To, BuildSubject(msg.ListenerName))

	return n.send(ctx, msg.To, []byte(headers+msg.Body))
}

// sendSMTP runs the full STARTTLS conversation. Failures are classified:
// auth rejections map to ErrAuthFailed, connection and protocol problems to
// ErrTransport.
func (n *Notifier) sendSMTP(ctx context.Context, to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrTransport, addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: handshake: %v", ErrTransport, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return fmt.Errorf("%w: starttls: %v", ErrTransport, err)
		}
	}

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("%w: mail from: %v", ErrTransport, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("%w: rcpt to: %v", ErrTransport, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: data: %v", ErrTransport, err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrTransport, err)
	}
	return client.Quit()
}
