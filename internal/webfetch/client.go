// Package webfetch retrieves public web pages and reduces them to plain text
// suitable for a chat reply. Only http and https URLs pointing at public hosts
// are allowed, so the bot cannot be used to probe internal networks.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/net/html"
)

var (
	ErrInvalidURL = errors.New("invalid url")
	ErrBlockedURL = errors.New("url points at a blocked host")
)

const (
	maxBodyBytes = 2 << 20 // 2 MiB
	maxTextChars = 4000
)

type Result struct {
	URL   string
	Title string
	Text  string
}

type Client struct {
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// Fetch validates the URL, downloads the page and extracts readable text.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := validateURL(rawURL)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, u)
}

func (c *Client) get(ctx context.Context, u *url.URL) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "GuardianBot/1.0 (+https://afelu.com)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch url: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}

	title, text := extractText(body)
	if len(text) > maxTextChars {
		text = text[:maxTextChars] + "..."
	}
	c.log.Info("fetched page", "url", u.String(), "bytes", len(body), "chars", len(text))

	return &Result{URL: u.String(), Title: title, Text: text}, nil
}

func validateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidURL
	}
	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return nil, ErrBlockedURL
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return nil, ErrBlockedURL
		}
	}
	return u, nil
}

// extractText walks the HTML tree collecting visible text, skipping script,
// style and other non-content elements.
func extractText(body []byte) (title, text string) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", collapseSpace(string(body))
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head", "nav", "footer":
				if n.Data == "head" {
					for t := n.FirstChild; t != nil; t = t.NextSibling {
						if t.Type == html.ElementNode && t.Data == "title" && t.FirstChild != nil {
							title = strings.TrimSpace(t.FirstChild.Data)
						}
					}
				}
				return
			}
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return title, collapseSpace(sb.String())
}

func collapseSpace(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteRune(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}
