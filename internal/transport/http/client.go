package httptransport

import (
	"fmt"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
)

// ClientConfig configures the shared backend client.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// NewClient builds the resty client every backend call goes through. The
// cookie jar carries the protected refresh cookie between requests.
func NewClient(cfg ClientConfig) (*resty.Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("http client requires a base url")
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetCookieJar(jar).
		SetTimeout(timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return client, nil
}
