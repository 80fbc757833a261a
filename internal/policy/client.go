// internal/policy/client.go
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Verdicts the policy server can return.
const (
	VerdictHonest            = "honest"
	VerdictFraudulent        = "fraudulent"
	VerdictVM                = "vm"
	VerdictAlreadyAssociated = "already_associated"
)

// ErrUnexpectedStatus is returned when the policy server answers with anything but 200.
var ErrUnexpectedStatus = errors.New("unexpected policy server status")

// Client asks the anti-fraud policy server whether a login looks legitimate.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *retryablehttp.Client
	logger  *logrus.Logger
}

type verifyRequest struct {
	PlayerID int    `json:"player_id"`
	UIDHash  string `json:"uid_hash"`
	Session  int64  `json:"session"`
}

type verifyResponse struct {
	Result string `json:"result"`
}

// NewClient returns a client for baseURL. Each Verify call is bounded by timeout,
// retries included.
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	hc := retryablehttp.NewClient()
	hc.Logger = nil
	hc.RetryMax = 2
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = 500 * time.Millisecond
	hc.HTTPClient.Timeout = timeout

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    hc,
		logger:  logger,
	}
}

// Verify posts the login fingerprint and returns the verdict string.
func (c *Client) Verify(ctx context.Context, playerID int, uidHash string, session int64) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(verifyRequest{PlayerID: playerID, UIDHash: uidHash, Session: session})
	if err != nil {
		return "", fmt.Errorf("marshal verify request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", body)
	if err != nil {
		return "", fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("policy server request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}
	c.logger.WithFields(logrus.Fields{"player_id": playerID, "verdict": out.Result}).Debug("policy verdict")
	return out.Result, nil
}
