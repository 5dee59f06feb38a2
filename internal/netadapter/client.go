package netadapter

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/cascadewire/chunkupload/internal/logging"
)

const (
	dialTimeout           = 30 * time.Second
	dialKeepAlive         = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
	tlsHandshakeTimeout   = 60 * time.Second
	expectContinueTimeout = 1 * time.Second
)

// newBaseTransport builds the pooled, large-transfer-tuned transport
// shared by every proxy mode.
func newBaseTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: dialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          512,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		DisableCompression:    true,
	}
}

// NewHTTPClient builds a proxy-aware *http.Client per proxy.Mode. An
// empty or "no-proxy" mode dials directly; "system" reads
// HTTP_PROXY/HTTPS_PROXY/NO_PROXY from the environment; "basic" and
// "ntlm" authenticate to an explicit proxy host.
func NewHTTPClient(proxy ProxyConfig, logger *logging.Logger) (*nethttp.Client, error) {
	transport := newBaseTransport()

	switch strings.ToLower(proxy.Mode) {
	case "", "no-proxy":
		transport.Proxy = nil
		return &nethttp.Client{Transport: transport}, nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment
		return &nethttp.Client{Transport: transport}, nil

	case "ntlm":
		if proxy.Host == "" {
			return nil, fmt.Errorf("netadapter: ntlm proxy mode requires a host")
		}
		proxyURL := buildProxyURL(proxy)
		transport.Proxy = proxyFuncWithBypass(proxyURL, proxy.NoProxy, logger)
		return &nethttp.Client{
			Transport: ntlmssp.Negotiator{RoundTripper: transport},
		}, nil

	case "basic":
		if proxy.Host == "" {
			return nil, fmt.Errorf("netadapter: basic proxy mode requires a host")
		}
		proxyURL := buildProxyURL(proxy)
		transport.Proxy = proxyFuncWithBypass(proxyURL, proxy.NoProxy, logger)
		return &nethttp.Client{Transport: transport}, nil

	default:
		return nil, fmt.Errorf("netadapter: unsupported proxy mode %q", proxy.Mode)
	}
}

func buildProxyURL(proxy ProxyConfig) *url.URL {
	port := proxy.Port
	if port == 0 {
		port = 8080
	}
	u := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", proxy.Host, port)}
	if proxy.User != "" && proxy.Password != "" {
		u.User = url.UserPassword(proxy.User, proxy.Password)
	}
	return u
}

// proxyFuncWithBypass matches proxy.go's bypass-aware proxy selection,
// adapted to log through the shared structured logger instead of the
// standard log package.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if logger != nil {
			if result == nil {
				logger.Debug().Str("host", req.URL.Host).Msg("proxy bypass, direct connection")
			} else {
				logger.Debug().Str("host", req.URL.Host).Str("proxy", result.Host).Msg("proxied")
			}
		}
		return result, err
	}
}
