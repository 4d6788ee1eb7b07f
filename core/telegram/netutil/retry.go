// Package netutil classifies Bot API call failures for the retry loops of the sender and
// the HTTP transport.
package netutil

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether err is transient: a dial or timeout failure, a dropped
// connection, a flood-control answer, or a 5xx from the Bot API.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
		return ShouldRetry(urlErr.Err)
	}

	return false
}

// RetryAfter returns the wait requested by a flood-control answer, or zero.
func RetryAfter(err error) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return 0
}

// Classify names the failure family of err for logs: timeout, dns, dial, tls, flood,
// http_4xx, http_5xx or unknown.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return "flood"
	}
	if code := StatusCode(err); code >= 500 {
		return "http_5xx"
	} else if code >= 400 {
		return "http_4xx"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	var tlsErr tls.AlertError
	if errors.As(err, &tlsErr) {
		return "tls"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	return "unknown"
}

// StatusCode returns the Bot API status carried by err, or zero. Errors that only mention the
// code as a trailing "(400)" are recognized too.
func StatusCode(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	if err == nil {
		return 0
	}
	msg := strings.TrimSpace(err.Error())
	open := strings.LastIndex(msg, "(")
	if open < 0 || !strings.HasSuffix(msg, ")") {
		return 0
	}
	code, convErr := strconv.Atoi(msg[open+1 : len(msg)-1])
	if convErr != nil {
		return 0
	}
	return code
}
