package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/wneessen/go-mail"

	"github.com/stacklok/registry-watcher/internal/config"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/stacklok/registry-watcher/internal/notify MailTransport

// Message is a plain text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// MailTransport delivers messages through one SMTP server
type MailTransport interface {
	// Verify checks that the server accepts a connection and the credentials
	Verify(ctx context.Context) error

	// Send delivers msg, the sender is the one configured for the server
	Send(ctx context.Context, msg *Message) error
}

// TransportFactory creates the transport of a named SMTP server
type TransportFactory func(instance string) (MailTransport, error)

// TransportCache lazily creates and keeps one MailTransport per SMTP server
type TransportCache struct {
	mu         sync.Mutex
	factory    TransportFactory
	transports map[string]MailTransport
}

// NewTransportCache creates a cache creating transports with factory
func NewTransportCache(factory TransportFactory) *TransportCache {
	return &TransportCache{
		factory:    factory,
		transports: make(map[string]MailTransport),
	}
}

// Get returns the transport of instance, creating it on first use.
// A failed creation is not cached.
func (c *TransportCache) Get(instance string) (MailTransport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if transport, ok := c.transports[instance]; ok {
		return transport, nil
	}

	transport, err := c.factory(instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail transport %q: %w", instance, err)
	}
	c.transports[instance] = transport
	return transport, nil
}

// NewSMTPTransportFactory returns a factory building go-mail transports for the configured servers
func NewSMTPTransportFactory(servers map[string]config.SMTPServerConfig) TransportFactory {
	return func(instance string) (MailTransport, error) {
		server, ok := servers[instance]
		if !ok {
			return nil, fmt.Errorf("smtp server %q is not configured", instance)
		}

		password, err := server.GetPassword(instance)
		if err != nil {
			return nil, err
		}

		return NewSMTPTransport(server, password)
	}
}

// smtpTransport is a MailTransport backed by a go-mail client.
// Calls are serialized since one client holds one connection.
type smtpTransport struct {
	mu            sync.Mutex
	client        *mail.Client
	senderName    string
	senderAddress string
}

// NewSMTPTransport creates a MailTransport for server. An empty username disables authentication.
func NewSMTPTransport(server config.SMTPServerConfig, password string) (MailTransport, error) {
	opts := []mail.Option{mail.WithPort(server.Port)}

	if server.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if server.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(server.Username),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(server.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client for %s: %w", server.Host, err)
	}

	return &smtpTransport{
		client:        client,
		senderName:    server.SenderName,
		senderAddress: server.SenderAddress,
	}, nil
}

// Verify implements MailTransport
func (t *smtpTransport) Verify(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to mail server: %w", err)
	}
	return t.client.Close()
}

// Send implements MailTransport
func (t *smtpTransport) Send(ctx context.Context, msg *Message) error {
	m, err := t.newMsg(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	return nil
}

// newMsg builds the go-mail message, the sender is rendered as "<name>" <address>
func (t *smtpTransport) newMsg(msg *Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(t.senderName, t.senderAddress); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", t.senderAddress, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}
