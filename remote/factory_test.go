package remote

import (
	"errors"
	"testing"
)

func TestNewSelectsVariant(t *testing.T) {
	tests := []struct {
		protocol Protocol
		port     int
		sftp     bool
	}{
		{ProtocolSFTP, 22, true},
		{ProtocolFTP, 21, false},
		{ProtocolExplicitFTPS, 21, false},
		{ProtocolImplicitFTPS, 990, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.protocol), func(t *testing.T) {
			c, err := New(Params{Protocol: tt.protocol, Host: "example.com"})
			if err != nil {
				t.Fatal(err)
			}
			switch v := c.(type) {
			case *sftpClient:
				if !tt.sftp {
					t.Fatalf("got SFTP client for %s", tt.protocol)
				}
				if v.params.Port != tt.port {
					t.Errorf("port = %d, want %d", v.params.Port, tt.port)
				}
			case *ftpClient:
				if tt.sftp {
					t.Fatalf("got FTP client for %s", tt.protocol)
				}
				if v.params.Port != tt.port {
					t.Errorf("port = %d, want %d", v.params.Port, tt.port)
				}
			default:
				t.Fatalf("unexpected client %T", c)
			}
		})
	}
}

func TestNewKeepsExplicitPort(t *testing.T) {
	c, err := New(Params{Protocol: ProtocolSFTP, Host: "example.com", Port: 2222})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Server(); got != "sftp example.com:2222" {
		t.Errorf("Server() = %q", got)
	}
}

func TestNewMaxRetries(t *testing.T) {
	tests := []struct {
		retries int
		want    int
	}{
		{0, 1},
		{1, 2},
		{2, 3},
		{4, 5},
	}
	for _, tt := range tests {
		c, err := New(Params{Protocol: ProtocolFTP, Host: "example.com", MaxRetries: tt.retries})
		if err != nil {
			t.Fatal(err)
		}
		if got := c.(*ftpClient).retry.MaxAttempts; got != tt.want {
			t.Errorf("MaxRetries %d: MaxAttempts = %d, want %d", tt.retries, got, tt.want)
		}
	}
}

func TestNewRejectsInvalidParams(t *testing.T) {
	if _, err := New(Params{Protocol: "gopher", Host: "example.com"}); !errors.Is(err, ErrConfig) {
		t.Errorf("unknown protocol: %v", err)
	}
	if _, err := New(Params{Protocol: ProtocolFTP}); !errors.Is(err, ErrConfig) {
		t.Errorf("missing host: %v", err)
	}
	if _, err := New(Params{Protocol: ProtocolFTP, Host: "example.com", MaxRetries: -1}); !errors.Is(err, ErrConfig) {
		t.Errorf("negative retries: %v", err)
	}
}
