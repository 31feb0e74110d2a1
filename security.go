package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const maxSecretLen = 65536

// secureWipe overwrites data with zeros.
func secureWipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// takeSecret returns b as a string and wipes b. The string itself cannot be
// wiped.
func takeSecret(b []byte) string {
	s := string(b)
	secureWipe(b)
	return s
}

// askSecret reads a secret from the terminal without echoing it. Input is
// read in chunks so that long base64 encoded keys survive.
func askSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("standard input is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return "", fmt.Errorf("failed to set terminal to raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	secret, err := readSecret(os.Stdin)
	if err != nil {
		return "", err
	}
	return takeSecret(secret), nil
}

// readSecret reads up to the first line terminator.
func readSecret(r io.Reader) ([]byte, error) {
	var secret []byte
	buffer := make([]byte, 4096)
	defer secureWipe(buffer)
	for {
		n, err := r.Read(buffer)
		if n > 0 && (buffer[n-1] == '\r' || buffer[n-1] == '\n') {
			secret = append(secret, buffer[:n-1]...)
			break
		}
		secret = append(secret, buffer[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			secureWipe(secret)
			return nil, fmt.Errorf("error reading secret: %w", err)
		}
		if len(secret) > maxSecretLen {
			secureWipe(secret)
			return nil, errors.New("secret too long")
		}
	}
	return secret, nil
}
