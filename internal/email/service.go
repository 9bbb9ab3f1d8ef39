package email

import (
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service delivers order notifications through an SMTP relay.
type Service struct {
	addr string
	from string
	send sendFunc
	now  func() time.Time
}

func NewService(host, port, from string) *Service {
	return &Service{
		addr: net.JoinHostPort(host, port),
		from: from,
		send: smtp.SendMail,
		now:  time.Now,
	}
}

// Notify renders the notification of kind and sends it to one recipient.
func (s *Service) Notify(to string, kind Kind, notice OrderNotice) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("email: empty recipient for %s", notice.OrderNumber)
	}
	subject, err := BuildSubject(kind, notice.OrderNumber)
	if err != nil {
		return err
	}
	body, err := BuildBody(kind, notice)
	if err != nil {
		return err
	}
	return s.send(s.addr, nil, s.from, []string{to}, s.message(to, subject, body))
}

func (s *Service) message(to, subject, body string) []byte {
	var b strings.Builder
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("From", s.from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", s.now().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.from)))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func domainOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 && i < len(address)-1 {
		return strings.Trim(address[i+1:], "> ")
	}
	return "localhost"
}
