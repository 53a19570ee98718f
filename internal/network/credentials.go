package network

import (
	"errors"
	"fmt"
)

// 802.11 caps: SSIDs are at most 32 octets, WPA2 passphrases at most 64.
const (
	maxSSIDLen     = 32
	maxPasswordLen = 64
)

var (
	// ErrMissingField marks a credential submission without an ssid= or
	// password= field.
	ErrMissingField = errors.New("missing credential field")

	// ErrInvalidCredentials marks credentials that fail bounds checks.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Credentials identify a network to join. Runtime values arrive through the
// configuration portal and are untrusted until Validate passes.
type Credentials struct {
	SSID     string
	Password string
}

func (c Credentials) Validate() error {
	if c.SSID == "" {
		return fmt.Errorf("%w: empty ssid", ErrInvalidCredentials)
	}
	if len(c.SSID) > maxSSIDLen {
		return fmt.Errorf("%w: ssid longer than %d bytes", ErrInvalidCredentials, maxSSIDLen)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: empty password", ErrInvalidCredentials)
	}
	if len(c.Password) > maxPasswordLen {
		return fmt.Errorf("%w: password longer than %d bytes", ErrInvalidCredentials, maxPasswordLen)
	}
	return nil
}
