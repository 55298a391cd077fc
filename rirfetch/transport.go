// package rirfetch ...
package rirfetch

// import
import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"time"
)

// getTlsConf ...
func getTlsConf(trustCA string, keyPins []string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify:     false,
		SessionTicketsDisabled: true,
		Renegotiation:          tls.RenegotiateNever,
		MinVersion:             tls.VersionTLS12,
	}
	if trustCA != "" {
		pem, err := os.ReadFile(trustCA)
		if err != nil {
			return nil, fmt.Errorf("[rirfetch] [tls] unable to read trust ca [%s] [%w]", trustCA, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("[rirfetch] [tls] no certificate found in [" + trustCA + "]")
		}
		tlsConfig.RootCAs = pool
	}
	if len(keyPins) > 0 {
		tlsConfig.VerifyConnection = func(state tls.ConnectionState) error {
			if !pinVerifyState(keyPins, &state) {
				return errors.New("[rirfetch] [tls] keypin verification failed")
			}
			return nil
		}
	}
	return tlsConfig, nil
}

// pinVerifyState ...
func pinVerifyState(keyPins []string, state *tls.ConnectionState) bool {
	if len(state.PeerCertificates) > 0 {
		return slices.Contains(keyPins, keyPinBase64(state.PeerCertificates[0]))
	}
	return false
}

// keyPinBase64 ...
func keyPinBase64(cert *x509.Certificate) string {
	h := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return base64.StdEncoding.EncodeToString(h[:])
}

// getTransport ...
func getTransport(tlsconf *tls.Config) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSClientConfig:       tlsconf,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     false,
	}
}

// getClient ...
func getClient(transport *http.Transport) *http.Client {
	return &http.Client{
		CheckRedirect: nil,
		Jar:           nil,
		Transport:     transport,
	}
}

// getRequest ...
func getRequest(ctx context.Context, targetURL, userAgent string) (*http.Request, error) {
	u, err := url.Parse(targetURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, fmt.Errorf("[rirfetch] [%s] invalid src url syntax", targetURL)
	}
	if userAgent == "" {
		userAgent = _DEFAULT_USERAGENT
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("[rirfetch] [%s] [request] [%w]", targetURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}
