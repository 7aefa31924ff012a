// Package email sends account and sale notifications over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppName  string
}

// Service provides email sending. When SMTP is not configured every send is
// logged and skipped.
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.AppName == "" {
		config.AppName = "PropIE"
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		logger: logger.Named("email"),
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart/alternative message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		s.logger.Info("email disabled, skipping send", zap.Strings("to", to), zap.String("subject", subject))
		return ErrNotConfigured
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}

	boundary := "boundary-propie"
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		s.logger.Warn("smtp send failed", zap.Strings("to", to), zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

type SaleStatusData struct {
	AppName     string
	UserName    string
	Development string
	Unit        string
	Status      string
	Note        string
}

// SendVerificationEmail sends an email verification email
func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	data := VerificationData{AppName: s.config.AppName, UserName: userName, VerificationURL: verificationURL}
	html, err := render(verificationTemplate, data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	text := fmt.Sprintf("Welcome to %s, %s.\n\nVerify your email address: %s\n\nThe link expires in 24 hours.",
		data.AppName, userName, verificationURL)
	return s.SendHTMLEmail([]string{to}, "Verify your "+data.AppName+" account", text, html)
}

// SendPasswordResetEmail sends a password reset email
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	data := PasswordResetData{AppName: s.config.AppName, UserName: userName, ResetURL: resetURL}
	html, err := render(passwordResetTemplate, data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	text := fmt.Sprintf("Hi %s,\n\nReset your password: %s\n\nThe link expires in 1 hour.", userName, resetURL)
	return s.SendHTMLEmail([]string{to}, "Reset your "+data.AppName+" password", text, html)
}

// SendSaleStatusEmail tells a buyer their sale moved to a new stage.
func (s *Service) SendSaleStatusEmail(to string, data SaleStatusData) error {
	data.AppName = s.config.AppName
	data.Status = strings.ReplaceAll(strings.ToLower(data.Status), "_", " ")
	html, err := render(saleStatusTemplate, data)
	if err != nil {
		return fmt.Errorf("render sale status template: %w", err)
	}
	text := fmt.Sprintf("Hi %s,\n\nYour purchase of %s at %s is now at stage: %s.", data.UserName, data.Unit, data.Development, data.Status)
	if data.Note != "" {
		text += "\n\n" + data.Note
	}
	return s.SendHTMLEmail([]string{to}, data.Development+": "+data.Unit+" update", text, html)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const layoutStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0b6e4f; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0b6e4f; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0b6e4f; }`

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Verify your {{.AppName}} account</title>
    <style>` + layoutStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Please verify your email address to activate your account.</p>
    <p><a href="{{.VerificationURL}}" class="button">Verify Email Address</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.VerificationURL}}</p>
    <p>This verification link will expire in 24 hours.</p>
    <div class="footer"><p>If you didn't create an account with {{.AppName}}, you can ignore this email.</p></div>
</body>
</html>`))

var passwordResetTemplate = template.Must(template.New("password-reset").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>` + layoutStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Password Reset Request</h2>
    <p>Hi {{.UserName}},</p>
    <p>We received a request to reset your password. Click the button below to choose a new one:</p>
    <p><a href="{{.ResetURL}}" class="button">Reset Password</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ResetURL}}</p>
    <p><strong>Important:</strong> This reset link will expire in 1 hour.</p>
    <div class="footer"><p>If you didn't request a password reset, your password will remain unchanged.</p></div>
</body>
</html>`))

var saleStatusTemplate = template.Must(template.New("sale-status").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Development}} update</title>
    <style>` + layoutStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <p>Hi {{.UserName}},</p>
    <p>Your purchase of <strong>{{.Unit}}</strong> at <strong>{{.Development}}</strong> is now at stage: <strong>{{.Status}}</strong>.</p>
    {{if .Note}}<p>{{.Note}}</p>{{end}}
    <div class="footer"><p>You are receiving this because you are the buyer on this sale.</p></div>
</body>
</html>`))
