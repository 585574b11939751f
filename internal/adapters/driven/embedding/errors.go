package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// maxErrorBody bounds how much of an error response ends up in messages.
const maxErrorBody = 512

// StatusError classifies a non-2xx provider response. Overload and server
// faults are transient; other client errors mean the request itself is bad.
func StatusError(provider string, status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	kind := domain.ErrInvalidInput
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		kind = domain.ErrProviderUnavailable
	}
	return fmt.Errorf("%s: %w (status %d): %s", provider, kind, status, string(body))
}

// TransportError classifies a failed round trip. Cancellation by the
// caller is returned as-is so it is never retried.
func TransportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", provider, domain.ErrProviderUnavailable, err)
}
