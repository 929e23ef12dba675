package source

import (
	"errors"
	"fmt"
	"net/url"
)

// Key identifies a source. Two descriptors with the same key are polled by a single poller.
type Key string

func (k Key) String() string {
	return string(k)
}

var (
	ErrMalformed = errors.New("malformed source address")
	ErrNoAddress = errors.New("the source has no address")
)

type MalformedError struct {
	Address string
	Reason  error
}

func (e *MalformedError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("malformed source address: %q", e.Address)
	}
	return fmt.Sprintf("malformed source address %q: %s", e.Address, e.Reason)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func (e *MalformedError) Unwrap() error {
	return e.Reason
}

// Normalize derives the source key from its address. The key is the address itself: only exact string equality
// makes two sources the same one.
func Normalize(address string) (Key, error) {
	if address == "" {
		return "", &MalformedError{Address: address, Reason: ErrNoAddress}
	}

	parsed, err := url.Parse(address)
	if err != nil {
		return "", &MalformedError{Address: address, Reason: err}
	}

	if parsed.Scheme == "" {
		return "", &MalformedError{Address: address, Reason: errors.New("the URL has no scheme")}
	} else if parsed.Host == "" && parsed.Opaque == "" {
		return "", &MalformedError{Address: address, Reason: errors.New("the URL has no host")}
	}

	return Key(address), nil
}
