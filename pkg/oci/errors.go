package oci

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
)

// Sentinel error kinds for client construction and validation.
var (
	// ErrCredential marks key material or signatures the provider rejects.
	ErrCredential = errors.New("credential rejected")
	// ErrProxy marks a proxy that cannot be parsed or dialled.
	ErrProxy = errors.New("proxy unusable")
	// ErrUnreachable marks timeouts and transport-level failures.
	ErrUnreachable = errors.New("provider unreachable")
)

// capacityCodes are the service-error code substrings treated as
// capacity pressure inside the snatch loop.
var capacityCodes = []string{"TooManyRequests", "LimitExceeded"}

// capacityMessage is the message substring OCI uses for AD-local
// capacity exhaustion.
const capacityMessage = "Out of host capacity"

// IsCapacityError reports whether err is a capacity or rate response:
// HTTP 429, a code containing TooManyRequests or LimitExceeded, or a
// message containing "Out of host capacity". These are never terminal
// for a snatch.
func IsCapacityError(err error) bool {
	se, ok := common.IsServiceError(err)
	if !ok {
		return false
	}
	if se.GetHTTPStatusCode() == 429 {
		return true
	}
	for _, code := range capacityCodes {
		if strings.Contains(se.GetCode(), code) {
			return true
		}
	}
	return strings.Contains(se.GetMessage(), capacityMessage)
}

// IsNotFound reports whether err is a 404 from the provider.
func IsNotFound(err error) bool {
	se, ok := common.IsServiceError(err)
	return ok && se.GetHTTPStatusCode() == 404
}

// IsServiceError reports whether err carries a provider service error,
// returning its code when it does.
func IsServiceError(err error) (code string, ok bool) {
	se, ok := common.IsServiceError(err)
	if !ok {
		return "", false
	}
	return se.GetCode(), true
}

// IsAuthError reports whether err is a 401/403 from the provider.
func IsAuthError(err error) bool {
	se, ok := common.IsServiceError(err)
	if !ok {
		return false
	}
	status := se.GetHTTPStatusCode()
	return status == 401 || status == 403
}

// ClassifyConnectError maps a validation failure onto the sentinel
// error kinds, preserving the original text.
func ClassifyConnectError(err error) error {
	if err == nil {
		return nil
	}
	if IsAuthError(err) {
		return errors.Join(ErrCredential, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrUnreachable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrUnreachable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if strings.Contains(opErr.Op, "proxyconnect") {
			return errors.Join(ErrProxy, err)
		}
		return errors.Join(ErrUnreachable, err)
	}
	if strings.Contains(err.Error(), "proxyconnect") {
		return errors.Join(ErrProxy, err)
	}
	if _, ok := common.IsServiceError(err); ok {
		return err
	}
	return errors.Join(ErrUnreachable, err)
}
