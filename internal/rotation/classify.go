package rotation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/daikw/keyvox/internal/speech"
)

var (
	quotaMarkers   = []string{"429", "quota"}
	invalidMarkers = []string{"403", "api key"}
)

// Classify maps a synthesizer error to a failure kind. Quota signals win over
// credential signals, so a 401 whose body reports an exhausted quota is a quota failure.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureOther
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureCanceled
	}
	if errors.Is(err, speech.ErrInvalidRequest) {
		return FailureInvalidRequest
	}

	structured := classifyStructured(err)
	if structured == FailureCanceled {
		return FailureCanceled
	}

	text := strings.ToLower(err.Error())
	if structured == FailureQuota || containsAny(text, quotaMarkers) {
		return FailureQuota
	}
	if structured == FailureInvalidCredential || containsAny(text, invalidMarkers) {
		return FailureInvalidCredential
	}
	return FailureOther
}

// classifyStructured inspects gRPC codes, HTTP statuses and AWS error codes
func classifyStructured(err error) FailureKind {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return FailureQuota
		case codes.PermissionDenied, codes.Unauthenticated:
			return FailureInvalidCredential
		case codes.Canceled, codes.DeadlineExceeded:
			return FailureCanceled
		}
	}

	var remote *speech.RemoteError
	if errors.As(err, &remote) {
		if kind, ok := classifyHTTPStatus(remote.StatusCode); ok {
			return kind
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return FailureQuota
		case "UnrecognizedClientException", "InvalidSignatureException", "AccessDeniedException":
			return FailureInvalidCredential
		}
	}

	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		if kind, ok := classifyHTTPStatus(withStatus.HTTPStatusCode()); ok {
			return kind
		}
	}
	return FailureOther
}

func classifyHTTPStatus(code int) (FailureKind, bool) {
	switch code {
	case http.StatusTooManyRequests:
		return FailureQuota, true
	case http.StatusUnauthorized, http.StatusForbidden:
		return FailureInvalidCredential, true
	}
	return FailureOther, false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
