package identity

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
	"github.com/wneessen/go-mail"
)

const verificationEmailSubject = "Verify your email address"

// VerificationLink builds the link embedded in the verification email. The
// token is opaque to the client.
func VerificationLink(baseURL, token string) string {
	return fmt.Sprintf("%s/verify?token=%s", strings.TrimRight(baseURL, "/"), token)
}

// VerificationEmailData is the binding for the verification email template.
type VerificationEmailData struct {
	Name string
	Link string
}

// EmailRenderer produces the HTML body for outbound verification mail.
type EmailRenderer interface {
	RenderVerification(data VerificationEmailData) (string, error)
}

type defaultEmailRenderer struct{}

func (defaultEmailRenderer) RenderVerification(data VerificationEmailData) (string, error) {
	return fmt.Sprintf(
		`<p>Hi %s,</p><p>Confirm your email address by following this link: <a href="%s">%s</a></p><p>The link expires in 10 minutes.</p>`,
		html.EscapeString(data.Name),
		data.Link,
		data.Link,
	), nil
}

// TemplateEmailRenderer renders email bodies from a django template
// directory. Expects a verification_email template.
type TemplateEmailRenderer struct {
	engine *django.Engine
}

// NewTemplateEmailRenderer loads templates from the given directory.
func NewTemplateEmailRenderer(dir string) (*TemplateEmailRenderer, error) {
	// engine.Load panics on a missing directory, so the check runs first
	// to keep the error contract
	if info, err := os.Stat(dir); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email templates")
	} else if !info.IsDir() {
		return nil, goerrors.New("email template path is not a directory", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"path": dir})
	}

	engine := django.New(dir, ".html")
	if err := engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email templates")
	}
	return &TemplateEmailRenderer{engine: engine}, nil
}

func (r *TemplateEmailRenderer) RenderVerification(data VerificationEmailData) (string, error) {
	var buf bytes.Buffer
	err := r.engine.Render(&buf, "verification_email", map[string]any{
		"name":              data.Name,
		"verification_link": data.Link,
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render verification email")
	}
	return buf.String(), nil
}

var _ Mailer = (*SMTPMailer)(nil)

// SMTPMailer delivers mail over SMTP.
type SMTPMailer struct {
	client *mail.Client
	from   string
	logger Logger
}

// SMTPOptions configures the SMTP transport.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSMTPMailer creates a Mailer that delivers through the given SMTP relay.
func NewSMTPMailer(opts SMTPOptions) (*SMTPMailer, error) {
	client, err := mail.NewClient(opts.Host,
		mail.WithPort(opts.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(opts.Username),
		mail.WithPassword(opts.Password),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create SMTP client")
	}

	return &SMTPMailer{
		client: client,
		from:   opts.From,
		logger: defLogger{},
	}, nil
}

func (m *SMTPMailer) WithLogger(logger Logger) *SMTPMailer {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Send delivers a single HTML message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sender address")
	}
	if err := msg.To(to); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient address")
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Error("SMTP delivery failed", "to", to, "error", err)
		return goerrors.Wrap(err, ErrEmailDispatchFailed.Category, ErrEmailDispatchFailed.Message).
			WithTextCode(ErrEmailDispatchFailed.TextCode)
	}

	return nil
}
