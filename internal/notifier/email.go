package notifier

import (
	"fmt"
	"net/smtp"
	"strings"
)

// sendEmail delivers one alert email over SMTP with plain auth.
func (s *Service) sendEmail(to, subject, body string) error {
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid email address: %s", to)
	}

	server := s.cfg.Email.SMTPServer
	port := s.cfg.Email.SMTPPort
	username := s.cfg.Email.Username
	password := s.cfg.Email.Password
	if server == "" || port == 0 || username == "" || password == "" {
		return fmt.Errorf("missing email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}

	from := username
	if s.cfg.Email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.Email.FromName, username)
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", from, to, subject, body))

	auth := smtp.PlainAuth("", username, password, server)
	addr := fmt.Sprintf("%s:%d", server, port)
	if err := smtp.SendMail(addr, auth, username, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
