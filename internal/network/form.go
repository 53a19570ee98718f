package network

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseCredentials extracts ssid and password from the raw text of a portal
// request. The body is URL-encoded form data; a field value runs until the
// next '&', whitespace, or end of input. Malformed input is rejected with an
// error, never a panic.
func ParseCredentials(request string) (Credentials, error) {
	ssid, err := formValue(request, "ssid")
	if err != nil {
		return Credentials{}, err
	}
	password, err := formValue(request, "password")
	if err != nil {
		return Credentials{}, err
	}

	creds := Credentials{SSID: ssid, Password: password}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func formValue(request, field string) (string, error) {
	marker := field + "="
	i := strings.Index(request, marker)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	rest := request[i+len(marker):]
	if end := strings.IndexFunc(rest, terminatesValue); end >= 0 {
		rest = rest[:end]
	}
	value, err := url.QueryUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("malformed %s value: %v", field, err)
	}
	return value, nil
}

func terminatesValue(r rune) bool {
	return r == '&' || r == ' ' || r == '\r' || r == '\n' || r == '\t'
}
