package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	AccountSID string
	AuthToken  string
	HTTP       *http.Client

	FromNumber string
	BaseURL    string
}

type SendRequest struct {
	To   string
	Body string
}

type SendResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) SendSMS(ctx context.Context, req SendRequest) (SendResponse, int, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("Body", req.Body)
	form.Set("From", c.FromNumber)

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	endpoint := baseURL + "/2010-04-01/Accounts/" + c.AccountSID + "/Messages.json"
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return SendResponse{}, 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out SendResponse
	_ = json.Unmarshal(b, &out)

	// Twilio returns 201 for created; treat 2xx as success
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Message != "" {
			return out, resp.StatusCode, errors.New(out.Message)
		}
		return out, resp.StatusCode, errors.New("twilio send failed")
	}
	return out, resp.StatusCode, nil
}

// Provider error codes that mean the recipient itself is bad. Retrying
// cannot help: invalid number, not SMS-capable, or unroutable region.
const (
	CodeInvalidNumber = 21211
	CodeUnreachable   = 21614
	CodeUnroutable    = 21408
)

func PermanentFailure(code int) bool {
	switch code {
	case CodeInvalidNumber, CodeUnreachable, CodeUnroutable:
		return true
	}
	return false
}

// Retry decision for transient transport errors
func ShouldRetry(err error, httpStatus int) bool {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
	}
	if httpStatus == 429 || httpStatus == 408 {
		return true
	}
	if httpStatus >= 500 && httpStatus <= 599 {
		return true
	}
	return false
}

// Backoff grows 2^attempt seconds: 2s, 4s, 8s for attempts 1..3.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<attempt) * time.Second
}
