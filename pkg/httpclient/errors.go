package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
)

// upstreamError covers the common OAuth/OpenID error body shapes.
type upstreamError struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// ParseResponseError consumes and closes a non-2xx response and maps it onto
// the application error taxonomy.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	detail := describe(body)
	msg := fmt.Sprintf("%s returned %d", upstream, resp.StatusCode)
	if detail != "" {
		msg += ": " + detail
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return apperrors.InvalidInput(msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.Unauthorized(msg)
	case http.StatusNotFound:
		return apperrors.NotFoundMessage(msg)
	case http.StatusConflict:
		return apperrors.Conflict(msg)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.ServiceUnavailable(msg)
	}
	return errors.New(msg)
}

func describe(body []byte) string {
	var ue upstreamError
	if json.Unmarshal(body, &ue) != nil {
		if len(body) > 200 {
			body = body[:200]
		}
		return string(body)
	}
	if ue.ErrorDescription != "" {
		return ue.ErrorDescription
	}
	var s string
	if json.Unmarshal(ue.Error, &s) == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(ue.Error, &nested) == nil {
		return nested.Message
	}
	return ""
}
