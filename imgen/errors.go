package imgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/types"
)

// Classify normalizes a raw failure into a *types.Error. Already
// classified errors pass through with backend/request identity filled in
// when missing. Unmapped failures become OPERATION_FAILED with medium
// severity.
func Classify(raw error, backend, requestID string) *types.Error {
	if raw == nil {
		return nil
	}

	if te, ok := types.AsError(raw); ok {
		if te.Backend == "" {
			te.Backend = backend
		}
		if te.RequestID == "" {
			te.RequestID = requestID
		}
		return te
	}

	code := types.ErrOperationFailed
	switch {
	case errors.Is(raw, context.DeadlineExceeded):
		code = types.ErrTimeout
	case errors.Is(raw, context.Canceled):
		code = types.ErrTimeout
	case isNetworkError(raw):
		code = types.ErrNetworkError
	}

	return types.NewError(code, raw.Error()).
		WithCause(raw).
		WithBackend(backend).
		WithRequestID(requestID)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// MapHTTPStatus maps an upstream HTTP status to a typed error with the
// matching retry marker. Shared by every HTTP-speaking adapter so the
// classification policy lives in one place.
func MapHTTPStatus(status int, msg, backend string) *types.Error {
	var code types.ErrorCode
	switch status {
	case http.StatusUnauthorized:
		code = types.ErrAuthenticationFailed
	case http.StatusForbidden:
		code = types.ErrPermissionDenied
	case http.StatusTooManyRequests:
		code = types.ErrRateLimitExceeded
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") ||
			strings.Contains(msgLower, "credit") ||
			strings.Contains(msgLower, "billing") {
			code = types.ErrQuotaExceeded
		} else if strings.Contains(msgLower, "content policy") ||
			strings.Contains(msgLower, "safety") {
			code = types.ErrContentPolicyViolation
		}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = types.ErrTimeout
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		code = types.ErrServiceUnavailable
	default:
		if status >= 500 {
			code = types.ErrServiceUnavailable
		} else {
			code = types.ErrOperationFailed
		}
	}
	return types.NewError(code, msg).
		WithBackend(backend).
		WithDetail("http_status", status)
}

// ReadErrorMessage extracts the error message from an upstream response
// body. JSON error envelopes are parsed; anything else passes through as
// raw text.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil {
		if errResp.Error.Message != "" {
			if errResp.Error.Type != "" {
				return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
			}
			return errResp.Error.Message
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// LogClassified logs a typed error at the level matching its severity.
func LogClassified(logger *zap.Logger, err *types.Error) {
	if err == nil {
		return
	}
	fields := []zap.Field{
		zap.String("code", string(err.Code)),
		zap.String("backend", err.Backend),
		zap.Bool("retryable", err.Retryable),
		zap.String("request_id", err.RequestID),
	}
	switch err.Severity {
	case types.SeverityCritical, types.SeverityHigh:
		logger.Error(err.Message, fields...)
	case types.SeverityMedium:
		logger.Warn(err.Message, fields...)
	default:
		logger.Info(err.Message, fields...)
	}
}
