package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Snapshot is the observable surface of one site: what a single page fetch
// reveals about reachability, transport security, and content signals.
type Snapshot struct {
	URL            string `json:"url"`
	Domain         string `json:"domain"`
	Reachable      bool   `json:"reachable"`
	StatusCode     int    `json:"status_code"`
	TLS            bool   `json:"tls"`
	ResponseMillis int64  `json:"response_ms"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	WordCount      int    `json:"word_count"`
	HasViewport    bool   `json:"has_viewport"`
	HasHSTS        bool   `json:"has_hsts"`
	HasBlog        bool   `json:"has_blog"`
	Server         string `json:"server,omitempty"`
}

// Fetcher produces a Snapshot for a URL. The scout agent is its only
// consumer; tests inject fakes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Snapshot, error)
}

// CredentialSource resolves stored basic-auth credentials for protected
// sites (staging environments and the like), keyed by host.
type CredentialSource interface {
	Lookup(host string) (user, pass string, ok bool)
}

// HTTPFetcher fetches one page per URL with a timeout and a body size cap.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	creds     CredentialSource
}

const defaultMaxBody = 2 << 20

func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBody:   defaultMaxBody,
	}
}

// SetCredentials wires a credential source used for protected sites.
func (f *HTTPFetcher) SetCredentials(cs CredentialSource) {
	f.creds = cs
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Snapshot, error) {
	u, err := url.Parse(normalizeURL(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.creds != nil {
		if user, pass, ok := f.creds.Lookup(u.Host); ok {
			req.SetBasicAuth(user, pass)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	snap := &Snapshot{
		URL:            u.String(),
		Domain:         u.Hostname(),
		Reachable:      resp.StatusCode < 500,
		StatusCode:     resp.StatusCode,
		TLS:            resp.TLS != nil,
		ResponseMillis: elapsed.Milliseconds(),
		HasHSTS:        resp.Header.Get("Strict-Transport-Security") != "",
		Server:         resp.Header.Get("Server"),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		// Headers alone are still a usable snapshot.
		return snap, nil
	}
	parsePage(snap, body)
	return snap, nil
}

// normalizeURL defaults bare hosts to https.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

// parsePage fills content signals from the fetched document.
func parsePage(snap *Snapshot, body []byte) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return
	}

	var words int
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if snap.Title == "" && n.FirstChild != nil {
					snap.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				name := strings.ToLower(attr(n, "name"))
				switch name {
				case "description":
					snap.Description = strings.TrimSpace(attr(n, "content"))
				case "viewport":
					snap.HasViewport = true
				}
			case "a":
				href := strings.ToLower(attr(n, "href"))
				if strings.Contains(href, "blog") || strings.Contains(href, "/news") {
					snap.HasBlog = true
				}
			}
		case html.TextNode:
			words += len(strings.Fields(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	snap.WordCount = words
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
