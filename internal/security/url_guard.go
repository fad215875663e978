package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// blockedNetworks は記事や著者プロフィールに埋め込ませない宛先のネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// ValidatePublicURL は編集者が入力したURL（カバー画像、著者のSNSリンク）を静的に検証する。
// http/httpsのみを許可し、localhostとプライベートIPを直接指すURLを拒否する。
// DNS解決は行わない。
func ValidatePublicURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, n := range blockedNetworks {
			if n.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
	}

	return nil
}

// NewSafeClient はプライベートIP・ループバック・メタデータIPへの接続を
// ダイヤル時に拒否するHTTPクライアントを生成する。
// DNS解決後のアドレスで検証するため、再バインディングにも対応する。
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ImageProber はカバー画像URLが実在する画像を指しているかを確認する。
type ImageProber struct {
	client *http.Client
}

// NewImageProber はImageProberを生成する。
// 本番ではNewSafeClientのクライアントを渡す。
func NewImageProber(client *http.Client) *ImageProber {
	return &ImageProber{client: client}
}

// Probe はHEADリクエストを送り、2xxかつContent-Typeがimage/*であることを確認する。
// URLの静的検証は呼び出し側でValidatePublicURLにより済ませておく。
func (p *ImageProber) Probe(ctx context.Context, imageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to probe image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("image responded with status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return fmt.Errorf("not an image: content-type %q", contentType)
	}

	return nil
}
