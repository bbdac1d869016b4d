package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"github.com/tasfrl/api/internal/logging"
)

// Service sends transactional mail over SMTP. It builds the messages but
// never retries; delivery-failure policy belongs to the caller.
type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromAddress  string
	adminEmail   string
}

func NewService(smtpHost, smtpPort, smtpUser, smtpPassword, fromAddress, adminEmail string) *Service {
	return &Service{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		smtpUser:     smtpUser,
		smtpPassword: smtpPassword,
		fromAddress:  fromAddress,
		adminEmail:   adminEmail,
	}
}

// SendVerificationEmail delivers the initial OTP code after registration,
// as plain text with both the raw code and a clickable verification link.
func (s *Service) SendVerificationEmail(ctx context.Context, toEmail, code, verificationLink string) error {
	logger := logging.GetLoggerFromContext(ctx)

	body := fmt.Sprintf(
		"Your OTP code is: %s\n\nYou can also verify using this link:\n%s",
		code, verificationLink,
	)

	if err := s.send(toEmail, "Verify Your Account", body, ""); err != nil {
		logger.Error("failed to send verification email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("verification email sent", "email", toEmail)
	return nil
}

// SendNewOTPEmail delivers a regenerated code after a resend request.
func (s *Service) SendNewOTPEmail(ctx context.Context, toEmail, code, verificationLink string) error {
	logger := logging.GetLoggerFromContext(ctx)

	body := fmt.Sprintf(
		"Your new OTP code is: %s\n\nYou can also verify using this link:\n%s",
		code, verificationLink,
	)

	if err := s.send(toEmail, "Your new OTP code", body, ""); err != nil {
		logger.Error("failed to send new otp email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("new otp email sent", "email", toEmail)
	return nil
}

// ContactNotification carries the submission details rendered into the
// admin notification email.
type ContactNotification struct {
	SubmissionID int64
	Name         string
	Email        string
	Message      string
}

// SendContactNotification emails the configured admin recipient about a
// new contact-form submission.
func (s *Service) SendContactNotification(ctx context.Context, n ContactNotification) error {
	logger := logging.GetLoggerFromContext(ctx)

	body, err := renderContactNotification(n)
	if err != nil {
		logger.Error("failed to render contact notification template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	subject := fmt.Sprintf("New Contact Form Submission from %s", n.Name)
	if err := s.send(s.adminEmail, subject, "", body); err != nil {
		logger.Error("failed to send contact notification", "email", s.adminEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("contact notification sent", "submission_id", n.SubmissionID)
	return nil
}

func (s *Service) send(to, subject, textBody, htmlBody string) error {
	msg := email.NewEmail()
	msg.From = s.fromAddress
	msg.To = []string{to}
	msg.Subject = subject
	if textBody != "" {
		msg.Text = []byte(textBody)
	}
	if htmlBody != "" {
		msg.HTML = []byte(htmlBody)
	}

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	auth := smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)

	// Port 465 expects implicit TLS; everything else negotiates STARTTLS.
	if s.smtpPort == "465" {
		return msg.SendWithTLS(addr, auth, &tls.Config{ServerName: s.smtpHost})
	}
	return msg.Send(addr, auth)
}

var contactNotificationTmpl = template.Must(template.New("contactNotification").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">New Contact Form Submission</h2>
  <div style="background: #f5f5f5; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <p><strong>Submission ID:</strong> #{{.SubmissionID}}</p>
    <p><strong>Name:</strong> {{.Name}}</p>
    <p><strong>Email:</strong> {{.Email}}</p>
    <p><strong>Message:</strong></p>
    <div style="background: white; padding: 15px; border-radius: 4px; margin-top: 10px;">
      {{.Message}}
    </div>
  </div>
  <p style="color: #666; font-size: 14px;">
    This message was submitted through the contact form on your website.
  </p>
</div>
`))

func renderContactNotification(n ContactNotification) (string, error) {
	// Escape first, then turn newlines into line breaks so the message
	// keeps its shape in the HTML body.
	escaped := template.HTMLEscapeString(n.Message)
	message := template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))

	data := struct {
		SubmissionID int64
		Name         string
		Email        string
		Message      template.HTML
	}{
		SubmissionID: n.SubmissionID,
		Name:         n.Name,
		Email:        n.Email,
		Message:      message,
	}

	var buf bytes.Buffer
	if err := contactNotificationTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
