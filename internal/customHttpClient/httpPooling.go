package customHttpClient

import (
	"net/http"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
)

// one transport for every plain HTTP collaborator (ollama, geocoders,
// license server) so connections are reused across calls
var customTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        config.MaxIdleConns,
	MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
	IdleConnTimeout:     config.IdleConnTimeout,
}

// New returns a client on the shared transport.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: customTransport,
		Timeout:   timeout,
	}
}
