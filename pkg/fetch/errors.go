package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/KonishchevDmitry/newsfeedd/internal/util"
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

// StatusError is returned when the server responds with a non-successful HTTP status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("the server returned an error: %s", e.Status)
}

// ParseError is returned when the fetched document can't be interpreted as a feed.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse the feed: %s", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func makeStatusError(response *http.Response) error {
	err := &StatusError{
		StatusCode: response.StatusCode,
		Status:     response.Status,
	}
	if response.StatusCode >= 500 && response.StatusCode < 600 {
		return util.MakeTemporaryError(err)
	}
	return err
}

// Classify maps a fetch error to the error kind reported to consumers.
func Classify(err error) feed.ErrorKind {
	var (
		statusErr *StatusError
		parseErr  *ParseError
		dnsErr    *net.DNSError
	)

	switch {
	case errors.Is(err, source.ErrNoAddress):
		return feed.InvalidSource
	case errors.Is(err, source.ErrMalformed):
		return feed.MalformedSource
	case errors.As(err, &parseErr):
		return feed.ParseError
	case errors.As(err, &statusErr):
		switch code := statusErr.StatusCode; {
		case code >= 400 && code < 500:
			return feed.ClientError
		case code >= 500:
			return feed.ServerError
		}
	case errors.As(err, &dnsErr):
		return feed.SourceNotFound
	case errors.Is(err, syscall.ECONNREFUSED):
		return feed.ConnectionRefused
	}

	return feed.UnknownFetchError
}
