package remote

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// SSHOptions tunes the SSH transport underneath SFTP.
type SSHOptions struct {
	// DisabledAlgorithms is keyed by kex, ciphers, macs, keys or pubkeys.
	DisabledAlgorithms map[string][]string
	BannerTimeout      time.Duration
	KnownHostsFile     string
	HostKeyFingerprint string
}

// Params holds validated connection parameters.
type Params struct {
	Protocol   Protocol
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string
	Passphrase string
	SSH        SSHOptions

	PassiveMode        bool
	InsecureSkipVerify bool
	Timeout            time.Duration
	BasePath           string

	// MaxRetries counts connect attempts after the first one; zero disables
	// retrying.
	MaxRetries int
}

func (p Params) addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p Params) server() string {
	return fmt.Sprintf("%s %s", p.Protocol, p.addr())
}

type options struct {
	log   *zap.Logger
	retry *RetryPolicy
}

// Option customizes a Client built by New.
type Option func(*options)

// WithLogger sets the logger used by the client.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithRetryPolicy overrides the connect backoff derived from Params.MaxRetries.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.retry = &p
	}
}

// New returns the Client variant for p.Protocol. A zero port is replaced by
// the protocol default.
func New(p Params, opts ...Option) (Client, error) {
	if !p.Protocol.Valid() {
		return nil, configErrorf("unsupported protocol %q", p.Protocol)
	}
	if p.Host == "" {
		return nil, configErrorf("hostname is required")
	}
	if p.Port == 0 {
		p.Port = p.Protocol.DefaultPort()
	}
	if p.MaxRetries < 0 {
		return nil, configErrorf("max retries must not be negative")
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = p.MaxRetries + 1
	if o.retry != nil {
		policy = *o.retry
	}

	log := o.log.With(zap.String("server", p.server()))
	if p.Protocol == ProtocolSFTP {
		return newSFTPClient(p, policy, log), nil
	}
	return newFTPClient(p, policy, log), nil
}
