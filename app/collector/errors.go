package collector

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

type FetchErrorKind int

const (
	// Transport covers every fetch failure that is not an unreachable host,
	// including non-2xx responses.
	Transport FetchErrorKind = iota
	HostUnreachable
)

func (k FetchErrorKind) String() string {
	switch k {
	case HostUnreachable:
		return "host unreachable"
	default:
		return "transport"
	}
}

type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func newFetchError(url string, err error) *FetchError {
	return &FetchError{Kind: classify(err), URL: url, Err: err}
}

func classify(err error) FetchErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return HostUnreachable
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return HostUnreachable
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return HostUnreachable
	}

	return Transport
}
