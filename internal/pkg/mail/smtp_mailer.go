package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/roteira-app/roteira/internal/pkg/env"
)

// Message is a single outbound HTML mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Encode renders the message as an SMTP payload from the given sender.
func (m Message) Encode(sender string) []byte {
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, m.To, m.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			m.Body,
	)
}

// Send delivers the message through the relay configured via SMTP_HOST,
// SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD and SMTP_SENDER.
func Send(msg Message) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "587")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "no-reply@roteira.app")

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	if err := smtp.SendMail(addr, auth, sender, []string{msg.To}, msg.Encode(sender)); err != nil {
		log.Printf("SMTP send to %s failed: %v", msg.To, err)
		return err
	}
	log.Printf("Email sent to %s via %s", msg.To, addr)
	return nil
}
