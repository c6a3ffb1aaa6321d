// Package rotation runs speech requests against a pool of API keys,
// rotating between active keys and failing over when a key is rejected.
package rotation

import (
	"errors"

	"github.com/daikw/keyvox/internal/credential"
	"github.com/daikw/keyvox/internal/speech"
)

var (
	ErrNoActiveCredentials = errors.New("no active API keys available")
	ErrInvalidCredential   = errors.New("API key rejected")
	ErrQuotaExceeded       = errors.New("API key quota exceeded")
	ErrOtherRemoteFailure  = errors.New("remote speech request failed")
)

// FailureKind is the classification of a failed attempt
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureQuota
	FailureInvalidCredential
	FailureCanceled
	// FailureInvalidRequest is a request rejected before it left the process
	FailureInvalidRequest
)

func (k FailureKind) String() string {
	switch k {
	case FailureQuota:
		return "quota"
	case FailureInvalidCredential:
		return "invalid_credential"
	case FailureCanceled:
		return "canceled"
	case FailureInvalidRequest:
		return "invalid_request"
	default:
		return "other"
	}
}

// Status returns the credential status a failure of this kind leads to
func (k FailureKind) Status() credential.Status {
	if k == FailureQuota {
		return credential.StatusQuotaExceeded
	}
	return credential.StatusError
}

// Err returns the sentinel error for the kind
func (k FailureKind) Err() error {
	switch k {
	case FailureQuota:
		return ErrQuotaExceeded
	case FailureInvalidCredential:
		return ErrInvalidCredential
	case FailureInvalidRequest:
		return speech.ErrInvalidRequest
	default:
		return ErrOtherRemoteFailure
	}
}

// blamesKey reports whether a failure of this kind should change the key's status
func (k FailureKind) blamesKey() bool {
	return k != FailureCanceled && k != FailureInvalidRequest
}

func (k FailureKind) defaultMessage() string {
	return k.Err().Error()
}

// AttemptError is the failure of one attempt with one key
type AttemptError struct {
	Kind FailureKind
	Key  string // masked
	Err  error
}

func (e *AttemptError) Error() string {
	return e.Key + ": " + e.Err.Error()
}

// Unwrap exposes both the kind sentinel and the remote error
func (e *AttemptError) Unwrap() []error {
	return []error{e.Kind.Err(), e.Err}
}
