package license

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func licenseServer(t *testing.T, seen *[]request) *httptest.Server {
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		*seen = append(*seen, req)
		mu.Unlock()

		switch {
		case req.Action == "ping":
			w.WriteHeader(http.StatusOK)
		case req.LicenseKey == "GOOD-KEY":
			_ = json.NewEncoder(w).Encode(Response{Valid: true, Message: "ok"})
		case req.LicenseKey == "BROKEN":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_ = json.NewEncoder(w).Encode(Response{Valid: false, Message: "expired"})
		}
	}))
}

func TestCheck(t *testing.T) {
	var seen []request
	srv := licenseServer(t, &seen)
	defer srv.Close()
	c := NewClient(srv.URL)

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"valid", "GOOD-KEY", nil},
		{"rejected", "OLD-KEY", ErrInvalidLicense},
		{"missing key", "", ErrNoLicense},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Check(context.Background(), tt.key)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	require.NotEmpty(t, seen)
	assert.Equal(t, "validate", seen[0].Action)
	assert.Equal(t, HardwareID(), seen[0].HardwareId)
	assert.Len(t, seen[0].HardwareId, 64)
}

func TestValidate_ServerError(t *testing.T) {
	var seen []request
	srv := licenseServer(t, &seen)
	defer srv.Close()

	resp, err := NewClient(srv.URL).Validate(context.Background(), "BROKEN")
	assert.Error(t, err)
	assert.False(t, resp.Valid)
	assert.Contains(t, resp.Message, "500")
}

func TestPing(t *testing.T) {
	var seen []request
	srv := licenseServer(t, &seen)
	defer srv.Close()

	NewClient(srv.URL).Ping(context.Background(), "GOOD-KEY")
	require.Len(t, seen, 1)
	assert.Equal(t, "ping", seen[0].Action)
	assert.NotEmpty(t, seen[0].AppVersion)
}

func TestDisabledGate(t *testing.T) {
	var c *Client = NewClient("")
	assert.Nil(t, c)
	assert.NoError(t, c.Check(context.Background(), ""))
	c.Ping(context.Background(), "x")
}

func TestHardwareIDIsStable(t *testing.T) {
	assert.Equal(t, HardwareID(), HardwareID())
}
