package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"golang.org/x/oauth2"
)

// ErrMissingCredentials is returned when the configured auth mode lacks required values
var ErrMissingCredentials = errors.New("mail credentials not configured")

const (
	AuthPassword = "password"
	AuthOAuth2   = "oauth2"

	// implicitTLSPort is the submissions port; every other port upgrades with STARTTLS
	implicitTLSPort = 465

	defaultTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	dialTimeout     = 30 * time.Second
)

// SMTPTransport delivers composed messages over an authenticated, encrypted SMTP session
type SMTPTransport struct {
	host      string
	port      int
	auth      smtp.Auth
	tlsConfig *tls.Config
	logger    arbor.ILogger
}

var _ interfaces.MailTransport = (*SMTPTransport)(nil)

// NewSMTPTransport validates credentials for the configured auth mode and builds the transport
func NewSMTPTransport(ctx context.Context, config common.MailConfig, logger arbor.ILogger) (*SMTPTransport, error) {
	if strings.TrimSpace(config.Host) == "" {
		return nil, fmt.Errorf("%w: host is empty", ErrMissingCredentials)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("%w: username is empty", ErrMissingCredentials)
	}

	var auth smtp.Auth
	switch config.Auth {
	case AuthPassword, "":
		if config.Password == "" {
			return nil, fmt.Errorf("%w: password is empty", ErrMissingCredentials)
		}
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	case AuthOAuth2:
		source, err := newTokenSource(ctx, config.OAuth)
		if err != nil {
			return nil, err
		}
		auth = &xoauth2Auth{username: config.Username, source: source}
	default:
		return nil, fmt.Errorf("unsupported mail auth mode %q", config.Auth)
	}

	return &SMTPTransport{
		host:      config.Host,
		port:      config.Port,
		auth:      auth,
		tlsConfig: &tls.Config{ServerName: config.Host},
		logger:    logger,
	}, nil
}

func newTokenSource(ctx context.Context, config common.MailOAuthConfig) (oauth2.TokenSource, error) {
	if config.ClientID == "" || config.RefreshToken == "" {
		return nil, fmt.Errorf("%w: oauth2 needs client_id and refresh_token", ErrMissingCredentials)
	}
	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		Scopes:       config.Scopes,
	}
	return oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: config.RefreshToken}), nil
}

// Send opens a session, authenticates and delivers one message
func (t *SMTPTransport) Send(ctx context.Context, from string, to []string, message []byte) error {
	client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Auth(t.auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// dial connects with implicit TLS on 465 and STARTTLS otherwise
func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if t.port == implicitTLSPort {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if t.port != implicitTLSPort {
		if err := client.StartTLS(t.tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	t.logger.Debug().Str("addr", addr).Msg("SMTP session established")
	return client, nil
}

// xoauth2Auth implements the SASL XOAUTH2 mechanism used by Office 365 and Gmail
type xoauth2Auth struct {
	username string
	source   oauth2.TokenSource
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, errors.New("refusing XOAUTH2 over an unencrypted connection")
	}
	token, err := a.source.Token()
	if err != nil {
		return "", nil, fmt.Errorf("failed to refresh oauth2 token: %w", err)
	}
	resp := "user=" + a.username + "\x01auth=Bearer " + token.AccessToken + "\x01\x01"
	return "XOAUTH2", []byte(resp), nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// Server sent a JSON error challenge; an empty reply makes it return the failure
		return []byte{}, nil
	}
	return nil, nil
}
