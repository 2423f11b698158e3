package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendThreadMessage(ctx context.Context, toEmail, recipientName, body string) error {
	content, err := renderEmailTemplate("thread_message.html", threadMessageEmailData{
		baseEmailData: baseEmailData{
			Title:   subjectThreadMessage,
			Heading: subjectThreadMessage,
		},
		RecipientName: recipientName,
		Body:          body,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectThreadMessage, content)
}

func (s *SMTPSender) SendFeedbackRequest(ctx context.Context, toEmail, clientName, feedbackURL string) error {
	content, err := renderEmailTemplate("feedback_request.html", feedbackRequestEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectFeedbackRequest,
			Heading:  "How did your appointment go?",
			CTALabel: "Share feedback",
			CTAURL:   feedbackURL,
		},
		ClientName: clientName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectFeedbackRequest, content)
}

func (s *SMTPSender) SendAttentionAlert(ctx context.Context, toEmail, negotiationID, reason string) error {
	content, err := renderEmailTemplate("attention_alert.html", attentionAlertEmailData{
		baseEmailData: baseEmailData{
			Title:   subjectAttentionAlert,
			Heading: "A booking needs a human",
		},
		NegotiationID: negotiationID,
		Reason:        reason,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectAttentionAlert, content)
}
