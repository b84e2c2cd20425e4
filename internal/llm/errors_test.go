package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		class  ErrorClass
		aborts bool
	}{
		{http.StatusTooManyRequests, RateLimited, false},
		{529, RateLimited, false},
		{http.StatusInternalServerError, Transient, false},
		{http.StatusBadGateway, Transient, false},
		{http.StatusRequestTimeout, Transient, false},
		{http.StatusUnauthorized, Fatal, true},
		{http.StatusForbidden, Fatal, true},
		{http.StatusBadRequest, Fatal, false},
		{http.StatusRequestEntityTooLarge, Fatal, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, nil, "")
			assert.Equal(t, tt.class, err.Class)
			assert.Equal(t, tt.aborts, err.Aborts())
			assert.Equal(t, tt.class != Fatal, err.Retryable())
		})
	}
}

func TestFromHTTPStatus_RetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	err := FromHTTPStatus(http.StatusTooManyRequests, h, `{"error":"slow down"}`)
	assert.Equal(t, 7*time.Second, err.RetryAfter)
	assert.Contains(t, err.Reason, "slow down")
}

func TestFromHTTPStatus_ReasonKeepsRunes(t *testing.T) {
	//299 ascii bytes then a two byte rune straddling the limit
	body := strings.Repeat("a", 299) + "è" + strings.Repeat("🚗", 20)
	err := FromHTTPStatus(http.StatusBadRequest, nil, body)
	assert.True(t, utf8.ValidString(err.Reason))
	assert.Equal(t, strings.Repeat("a", 299), err.Reason)

	short := FromHTTPStatus(http.StatusBadRequest, nil, "richiesta non valida: città")
	assert.Equal(t, "richiesta non valida: città", short.Reason)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), ParseRetryAfter(""))
	assert.Equal(t, 1500*time.Millisecond, ParseRetryAfter("1.5"))
	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d := ParseRetryAfter(future)
	assert.True(t, d > 20*time.Second && d <= 30*time.Second, "got %s", d)
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		class  ErrorClass
		aborts bool
	}{
		{"call error passes through", NewRateLimited(time.Second, "x"), RateLimited, false},
		{"wrapped call error", fmt.Errorf("chunk 3: %w", NewFatal(400, "bad", nil)), Fatal, false},
		{"deadline", context.DeadlineExceeded, Transient, false},
		{"rate limit text", errors.New("Error 429: rate limit reached"), RateLimited, false},
		{"auth text", errors.New("invalid api key provided"), Fatal, true},
		{"unknown", errors.New("something odd"), Transient, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.class, got.Class)
			assert.Equal(t, tt.aborts, got.Aborts())
		})
	}
	assert.Nil(t, Classify(nil))
}

func TestPromptVariant(t *testing.T) {
	assert.Equal(t, ForensicPromptVariant, PromptVariant(""))
	assert.Equal(t, ForensicPromptVariant, PromptVariant(ForensicPrompt))
	a := PromptVariant("find threats")
	assert.Equal(t, a, PromptVariant("find threats"))
	assert.NotEqual(t, a, PromptVariant("find places"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"ciao", 10, "ciao"},
		{"ciao", 2, "ci"},
		{"città", 4, "citt"},
		{"città", 5, "citt"},
		{"città", 6, "città"},
		{"🚗🚗", 5, "🚗"},
		{"🚗", 3, ""},
	}
	for _, tt := range tests {
		got := Truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "%q/%d", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got))
	}
}
