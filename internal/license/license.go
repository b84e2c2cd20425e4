// Package license validates the installation against the vendor's license
// server and sends the optional usage ping.
package license

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/customHttpClient"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

var (
	ErrNoLicense      = errors.New("no license key configured")
	ErrInvalidLicense = errors.New("license rejected")
)

type request struct {
	Action     string `json:"action"`
	LicenseKey string `json:"license_key"`
	HardwareId string `json:"hardware_id"`
	Hostname   string `json:"hostname"`
	OS         string `json:"os"`
	AppVersion string `json:"app_version,omitempty"`
}

type Response struct {
	Valid       bool            `json:"valid"`
	Message     string          `json:"message"`
	LicenseInfo json.RawMessage `json:"license_info,omitempty"`
}

type Client struct {
	url        string
	hardwareId string
	httpClient *http.Client
	logger     *logger_i.Logger
}

// NewClient returns nil when url is empty: the gate is then disabled.
func NewClient(url string) *Client {
	if url == "" {
		return nil
	}
	return &Client{
		url:        url,
		hardwareId: HardwareID(),
		httpClient: customHttpClient.New(config.LicenseTimeout),
		logger:     logger_i.NewLogger("license"),
	}
}

// Check is the gate run before any analysis. A nil client lets everything
// through.
func (c *Client) Check(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	if key == "" {
		return ErrNoLicense
	}
	resp, err := c.Validate(ctx, key)
	if err != nil {
		return err
	}
	if !resp.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidLicense, resp.Message)
	}
	c.logger.Debug("license valid")
	return nil
}

func (c *Client) Validate(ctx context.Context, key string) (Response, error) {
	var out Response
	status, err := c.post(ctx, c.newRequest("validate", key), &out)
	if err != nil {
		return Response{Message: err.Error()}, fmt.Errorf("license server unreachable: %w", err)
	}
	if status != http.StatusOK {
		return Response{Message: fmt.Sprintf("server error (HTTP %d)", status)}, fmt.Errorf("license server answered %d", status)
	}
	return out, nil
}

// Ping is best effort telemetry. Failures are logged, never returned.
func (c *Client) Ping(ctx context.Context, key string) {
	if c == nil || key == "" {
		return
	}
	req := c.newRequest("ping", key)
	req.AppVersion = config.AppVersion
	status, err := c.post(ctx, req, nil)
	if err != nil || status != http.StatusOK {
		c.logger.Debug("telemetry not sent", "status", status, "error", err)
	}
}

func (c *Client) newRequest(action string, key string) request {
	hostname, _ := os.Hostname()
	return request{
		Action:     action,
		LicenseKey: key,
		HardwareId: c.hardwareId,
		Hostname:   hostname,
		OS:         runtime.GOOS + " " + runtime.GOARCH,
	}
}

func (c *Client) post(ctx context.Context, body request, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding license response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// HardwareID is sha256 of hostname|user|first MAC|os-arch. It is stable
// across runs on the same machine.
func HardwareID() string {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	if user == "" {
		user = "unknown"
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s-%s", hostname, user, firstMAC(), runtime.GOOS, runtime.GOARCH)))
	return hex.EncodeToString(sum[:])
}

func firstMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "none"
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			return iface.HardwareAddr.String()
		}
	}
	return "none"
}
