package gemini

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fromAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fromAPIError(*apiErrPtr, err)
	}

	//vertex and older transports surface grpc statuses
	if s, ok := status.FromError(err); ok && s.Code() != codes.OK {
		switch s.Code() {
		case codes.ResourceExhausted:
			return llm.NewRateLimited(0, s.Message())
		case codes.Unauthenticated, codes.PermissionDenied:
			return llm.NewFatal(0, s.Message(), fmt.Errorf("%w: %w", llm.ErrUnauthorized, err))
		case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound:
			return llm.NewFatal(0, s.Message(), err)
		case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return llm.NewTransient(0, s.Message(), err)
		}
	}
	return llm.Classify(err)
}

func fromAPIError(apiErr genai.APIError, err error) *llm.CallError {
	callErr := llm.FromHTTPStatus(apiErr.Code, nil, apiErr.Message)
	callErr.Err = errors.Join(callErr.Err, err)
	if callErr.Class == llm.RateLimited {
		callErr.RetryAfter = retryDelay(apiErr.Details)
	}
	return callErr
}

// retryDelay reads google.rpc.RetryInfo from the error details.
func retryDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		kind, _ := d["@type"].(string)
		if !strings.HasSuffix(kind, "RetryInfo") {
			continue
		}
		if v, ok := d["retryDelay"].(string); ok {
			if dur, err := time.ParseDuration(v); err == nil {
				return dur
			}
		}
	}
	return 0
}
