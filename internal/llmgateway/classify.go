package llmgateway

import (
	"strconv"
	"strings"

	"voxpersona/internal/apperr"
)

// classify maps a provider error to the taxonomy kind used for retry and
// credential-quarantine decisions. Provider SDK errors render their HTTP
// status into Error(), so a lightweight substring scan is the portable way
// to classify across both the Anthropic and OpenAI clients without
// depending on SDK-internal error types.
func classify(err error) apperr.Kind {
	if err == nil {
		return apperr.Internal
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "401", "403", "permission_denied", "invalid_api_key", "invalid_credential", "authentication_error"):
		return apperr.CredentialError
	case containsAny(msg, "429", "rate_limit"):
		return apperr.RateLimited
	case containsAny(msg, "529", "overloaded"):
		return apperr.Overloaded
	case hasServerErrorStatus(msg):
		return apperr.Unavailable
	case containsAny(msg, "deadline exceeded", "context canceled", "timeout"):
		return apperr.Timeout
	default:
		return apperr.Unavailable
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// hasServerErrorStatus reports whether msg contains a 3-digit 5xx code
// other than 529 (which is classified as Overloaded above).
func hasServerErrorStatus(msg string) bool {
	for i := 0; i+3 <= len(msg); i++ {
		chunk := msg[i : i+3]
		n, err := strconv.Atoi(chunk)
		if err != nil {
			continue
		}
		if n >= 500 && n < 600 && n != 529 {
			return true
		}
	}
	return false
}

// isTransient reports whether kind is one the Gateway retries internally.
func isTransient(kind apperr.Kind) bool {
	switch kind {
	case apperr.RateLimited, apperr.Overloaded, apperr.Unavailable:
		return true
	default:
		return false
	}
}
