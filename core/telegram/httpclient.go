package telegram

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/ocipanel/core/logger"
)

const (
	dialTimeout     = 5 * time.Second
	tlsTimeout      = 5 * time.Second
	idleConnTimeout = 30 * time.Second
	responseTimeout = 5 * time.Second
	clientTimeout   = 30 * time.Second
	keepAlive       = 30 * time.Second

	redialAttempts = 3
	redialBackoff  = 500 * time.Millisecond
)

// BuildHTTPClient returns the Bot API client. longPoll is the getUpdates hold time; response
// deadlines are stretched past it.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	headerTimeout := responseTimeout + longPoll
	timeout := max(clientTimeout, headerTimeout+responseTimeout)
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &redialTransport{base: transport, attempts: redialAttempts, backoff: redialBackoff},
	}
}

// redialTransport repeats a request only when the connection could not be opened, so the Bot
// API never saw it. Failures after that point are left to the sender, which knows whether the
// call is safe to repeat.
type redialTransport struct {
	base     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (t *redialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for attempt := 2; err != nil && attempt <= t.attempts && dialFailed(err); attempt++ {
		if req.Body != nil && req.GetBody == nil {
			return nil, err
		}
		timer := time.NewTimer(t.backoff * time.Duration(attempt-1))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			retry.Body = body
		}
		logger.TG.Debug("redial",
			slog.String("event", "http.redial"),
			slog.Int("attempt", attempt),
			slog.String("err", logger.SanitizeLimit(err.Error(), 128)),
		)
		resp, err = t.base.RoundTrip(retry)
	}
	return resp, err
}

func dialFailed(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
