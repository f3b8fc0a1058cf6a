// Package resilience provides the shared HTTP transport pool, the 429-only
// retry wrapper, and the per-credential circuit breakers the gateway wraps
// every upstream call in.
package resilience

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"

	"github.com/antigravity-gateway/gateway/internal/transport"
	"golang.org/x/net/http2"
)

var (
	sharedTransport     *http.Transport
	sharedTransportOnce sync.Once
)

// SharedTransport returns the process-wide *http.Transport every upstream
// call goes through: one pool, dialer, and HTTP/2 config, shared across
// every credential since the gateway only ever talks to the antigravity
// backend directly (no per-credential proxy routing).
func SharedTransport() *http.Transport {
	sharedTransportOnce.Do(func() {
		sharedTransport = newBaseTransport()
		sharedTransport.DialContext = newDialer().DialContext
	})
	return sharedTransport
}

func newDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   transport.Config.DialTimeout,
		KeepAlive: transport.Config.KeepAlive,
		DualStack: true,
	}
}

func newBaseTransport() *http.Transport {
	t := &http.Transport{
		MaxIdleConns:        transport.Config.MaxIdleConns,
		MaxIdleConnsPerHost: transport.Config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     transport.Config.MaxConnsPerHost,
		IdleConnTimeout:     transport.Config.IdleConnTimeout,

		TLSHandshakeTimeout:   transport.Config.TLSHandshakeTimeout,
		ExpectContinueTimeout: transport.Config.ExpectContinueTimeout,
		ResponseHeaderTimeout: transport.Config.ResponseHeaderTimeout,

		ForceAttemptHTTP2:  true,
		DisableCompression: false,

		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			},
		},

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,
	}
	configureHTTP2(t)
	return t
}

func configureHTTP2(t *http.Transport) {
	h2Transport, err := http2.ConfigureTransports(t)
	if err != nil {
		return
	}
	h2Transport.ReadIdleTimeout = transport.Config.H2ReadIdleTimeout
	h2Transport.PingTimeout = transport.Config.H2PingTimeout
	h2Transport.StrictMaxConcurrentStreams = transport.Config.H2StrictMaxConcurrentStreams
	h2Transport.AllowHTTP = transport.Config.H2AllowHTTP
}
