package infrastructure

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/yourusername/url-relay-go/internal/domain"
)

const (
	keepAlivePeriod       = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = time.Second
	maxIdleConns          = 100
	maxConnsPerHost       = 16
)

// errIdleTimeout is the cancellation cause used when no bytes arrive within the read timeout.
var errIdleTimeout = errors.New("read timed out")

// NewHTTPClient creates a client tuned for large transfers: bounded pool, keep-alive,
// connect and header timeouts, and no total request deadline.
func NewHTTPClient(config *domain.DownloadConfig) *http.Client {
	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		ResponseHeaderTimeout: connectTimeout,
		DisableCompression:    true,
	}

	return &http.Client{Transport: transport}
}

// classifyTransportError maps a transport fault to Timeout, Cancelled or Network.
func classifyTransportError(ctx context.Context, err error) *domain.AcquisitionError {
	if errors.Is(context.Cause(ctx), errIdleTimeout) || errors.Is(err, errIdleTimeout) {
		return domain.WrapError(domain.KindTimeout, err, "no data received within the read timeout")
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return domain.WrapError(domain.KindCancelled, err, "transfer stopped")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.KindTimeout, err, "request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapError(domain.KindTimeout, err, "connection timed out")
	}
	return domain.WrapError(domain.KindNetwork, err, "transfer failed")
}
