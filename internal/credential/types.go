// Package credential stores the pool of API keys used to call the speech backends,
// together with their rotation status and usage counters.
package credential

import (
	"errors"
	"fmt"
	"time"
)

// Status is the rotation status of a credential
type Status string

const (
	StatusActive        Status = "active"
	StatusQuotaExceeded Status = "quota_exceeded"
	StatusError         Status = "error"
)

// Credential represents a registered API key
type Credential struct {
	Secret       string    `json:"key"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	UsageCount   int       `json:"usageCount"`
	AddedAt      time.Time `json:"addedAt"`
}

// IsActive reports whether the credential may be picked for rotation
func (c Credential) IsActive() bool {
	return c.Status == StatusActive
}

var (
	ErrDuplicateCredential = errors.New("credential already registered")
	ErrCredentialNotFound  = errors.New("credential not found")
	ErrEmptySecret         = errors.New("credential secret cannot be empty")
)

// defaultErrorMessage is used when a credential is marked failed without a reason.
const defaultErrorMessage = "unknown error"

// Mask hides a secret for display and logs, keeping only a short prefix.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return fmt.Sprintf("[%d chars]", len(secret))
	}
	return fmt.Sprintf("%s…[%d chars]", secret[:4], len(secret))
}

// normalize enforces the status/message invariant on a record read from storage.
func normalize(c Credential) Credential {
	switch c.Status {
	case StatusActive:
		c.ErrorMessage = ""
	case StatusQuotaExceeded, StatusError:
		if c.ErrorMessage == "" {
			c.ErrorMessage = defaultErrorMessage
		}
	default:
		// Unknown statuses from older releases are treated as usable.
		c.Status = StatusActive
		c.ErrorMessage = ""
	}
	if c.UsageCount < 0 {
		c.UsageCount = 0
	}
	return c
}
