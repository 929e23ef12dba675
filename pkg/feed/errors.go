package feed

import "fmt"

type ErrorKind int

const (
	UnknownFetchError ErrorKind = iota
	MalformedSource
	SourceNotFound
	ConnectionRefused
	ClientError
	ServerError
	ParseError
	ImageGenerationError
	InvalidSource
)

var errorCodes = map[ErrorKind]string{
	UnknownFetchError:    "MODULE_ERROR_UNKNOWN",
	MalformedSource:      "MODULE_ERROR_MALFORMED_URL",
	SourceNotFound:       "MODULE_ERROR_FEED_NOT_FOUND",
	ConnectionRefused:    "MODULE_ERROR_CONNECTION_REFUSED",
	ClientError:          "MODULE_ERROR_CLIENT_ERROR",
	ServerError:          "MODULE_ERROR_SERVER_ERROR",
	ParseError:           "MODULE_ERROR_PARSE_ERROR",
	ImageGenerationError: "MODULE_ERROR_IMAGE_GENERATION",
	InvalidSource:        "MODULE_ERROR_INVALID_FEED",
}

func (k ErrorKind) String() string {
	if code, ok := errorCodes[k]; ok {
		return code
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(text []byte) error {
	for kind, code := range errorCodes {
		if code == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error type: %q", text)
}
