package remote

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// parsePrivateKey accepts a PEM key or a base64 encoded PEM key, trying each
// decoding with and without the passphrase until one parses.
func parsePrivateKey(key, passphrase string) (ssh.Signer, error) {
	candidates := [][]byte{[]byte(key)}
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key)); err == nil {
		candidates = append(candidates, decoded)
	}

	var lastErr error
	for _, pem := range candidates {
		signer, err := ssh.ParsePrivateKey(pem)
		if err == nil {
			return signer, nil
		}

		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			if passphrase == "" {
				return nil, configErrorf("SSH private key is encrypted but no passphrase was given")
			}
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
			if err == nil {
				return signer, nil
			}
		}
		lastErr = err
	}

	return nil, configErrorf("unable to parse SSH private key, unsupported key type or invalid format: %v", lastErr)
}

var rsaSignatureAlgorithms = []string{
	ssh.KeyAlgoRSASHA512,
	ssh.KeyAlgoRSASHA256,
	ssh.KeyAlgoRSA,
}

// restrictSigner drops the signature algorithms listed in disabled.
func restrictSigner(signer ssh.Signer, disabled []string) (ssh.Signer, error) {
	if len(disabled) == 0 {
		return signer, nil
	}

	keyType := signer.PublicKey().Type()
	if keyType != ssh.KeyAlgoRSA {
		if slices.Contains(disabled, keyType) {
			return nil, configErrorf("public key algorithm %s is disabled", keyType)
		}
		return signer, nil
	}

	allowed := without(rsaSignatureAlgorithms, disabled)
	if len(allowed) == 0 {
		return nil, configErrorf("every RSA signature algorithm is disabled")
	}
	as, ok := signer.(ssh.AlgorithmSigner)
	if !ok {
		return signer, nil
	}
	restricted, err := ssh.NewSignerWithAlgorithms(as, allowed)
	if err != nil {
		return nil, configErrorf("restricting key algorithms: %v", err)
	}
	return restricted, nil
}

// applyDisabledAlgorithms narrows the negotiation sets of cfg. Categories
// without disabled entries keep the library defaults.
func applyDisabledAlgorithms(cfg *ssh.ClientConfig, disabled map[string][]string) error {
	supported := ssh.SupportedAlgorithms()

	categories := make([]string, 0, len(disabled))
	for k := range disabled {
		categories = append(categories, k)
	}
	sort.Strings(categories)

	for _, category := range categories {
		names := disabled[category]
		if len(names) == 0 {
			continue
		}
		switch category {
		case "kex":
			cfg.KeyExchanges = without(supported.KeyExchanges, names)
		case "ciphers":
			cfg.Ciphers = without(supported.Ciphers, names)
		case "macs":
			cfg.MACs = without(supported.MACs, names)
		case "keys":
			cfg.HostKeyAlgorithms = without(supported.HostKeys, names)
		case "pubkeys":
			// applied to the signer
		default:
			return configErrorf("unknown algorithm category %q", category)
		}
	}
	return nil
}

func without(all, drop []string) []string {
	out := make([]string, 0, len(all))
	for _, a := range all {
		if !slices.Contains(drop, a) {
			out = append(out, a)
		}
	}
	return out
}

type hostKeyError struct {
	host string
	got  string
}

func (e *hostKeyError) Error() string {
	return fmt.Sprintf("host key fingerprint mismatch for %s: got %s", e.host, e.got)
}

// hostKeyCallback verifies against a known_hosts file or a pinned SHA256
// fingerprint. Without either every key is accepted and logged.
func hostKeyCallback(opts SSHOptions, log *zap.Logger) (ssh.HostKeyCallback, error) {
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, configErrorf("failed to load known hosts %s: %v", opts.KnownHostsFile, err)
		}
		return cb, nil
	}

	if want := opts.HostKeyFingerprint; want != "" {
		return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
			if got := ssh.FingerprintSHA256(key); got != want {
				return &hostKeyError{host: hostname, got: got}
			}
			return nil
		}, nil
	}

	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		log.Warn("accepting unverified host key",
			zap.String("host", hostname),
			zap.String("type", key.Type()),
			zap.String("fingerprint", ssh.FingerprintSHA256(key)),
		)
		return nil
	}, nil
}

// classifySSHError separates rejected credentials and host keys from
// failures worth retrying.
func classifySSHError(err error) error {
	var hkErr *hostKeyError
	var khErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	switch {
	case errors.As(err, &hkErr), errors.As(err, &khErr), errors.As(err, &revoked):
		return fmt.Errorf("host key verification failed: %w", err)
	case strings.Contains(err.Error(), "unable to authenticate"):
		return fmt.Errorf("authentication failed: %w", err)
	}
	return transient(err)
}
