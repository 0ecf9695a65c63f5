package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"createtree/internal/domain"
)

// MaxSourceBytes caps inline and fetched source photos.
const MaxSourceBytes = 10 << 20

var errPrivateAddress = errors.New("source image host resolves to a private address")

// SniffImage returns the detected MIME type of data, rejecting anything that
// is not an image. The sniffed type wins over any declared one.
func SniffImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: image is empty", domain.ErrInvalidParams)
	}
	if len(data) > MaxSourceBytes {
		return "", fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidParams, MaxSourceBytes)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: unsupported image type %s", domain.ErrInvalidParams, mime)
	}
	return mime, nil
}

// SourceFetcher downloads a source photo given by URL.
type SourceFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*SourceImage, error)
}

// HTTPSourceFetcher downloads http(s) images up to MaxSourceBytes. Unless
// AllowPrivate is set, hosts resolving to loopback, private or link-local
// addresses are refused at dial time.
type HTTPSourceFetcher struct {
	client *http.Client
}

func NewHTTPSourceFetcher(timeout time.Duration, allowPrivate bool) *HTTPSourceFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if !allowPrivate {
		dialer.Control = refusePrivate
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	return &HTTPSourceFetcher{client: &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return errors.New("too many redirects")
			}
			return checkSourceURL(req.URL)
		},
	}}
}

func (f *HTTPSourceFetcher) Fetch(ctx context.Context, rawURL string) (*SourceImage, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: imageUrl is not a valid URL", domain.ErrInvalidParams)
	}
	if err := checkSourceURL(u); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch source image: %w", err)
	}
	req.Header.Set("Accept", "image/*")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch source image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: imageUrl answered status %d", domain.ErrInvalidParams, resp.StatusCode)
	}
	if resp.ContentLength > MaxSourceBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidParams, MaxSourceBytes)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch source image: %w", err)
	}
	mime, err := SniffImage(data)
	if err != nil {
		return nil, err
	}
	return &SourceImage{Data: data, MIME: mime, URL: u.String()}, nil
}

func checkSourceURL(u *url.URL) error {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: imageUrl must be an http(s) URL", domain.ErrInvalidParams)
	}
	return nil
}

func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("%w: %s", errPrivateAddress, host)
	}
	return nil
}
