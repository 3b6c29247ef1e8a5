// Package enrich fetches display metadata for a newly saved URL.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/MrSnakeDoc/linkpocket/internal/classify"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
)

// Metadata is what the enricher found. Empty fields mean "not found", which
// is not an error. Video lookups fill VideoID, Title and AuthorName.
type Metadata struct {
	VideoID     string
	AuthorName  string
	Title       string
	Description string
	ImageURL    string
	Publisher   string
}

// IsVideo reports whether the metadata came from a video lookup.
func (m Metadata) IsVideo() bool { return m.VideoID != "" }

// Enricher looks up metadata for a URL. A returned error means the lookup
// itself failed.
type Enricher interface {
	Enrich(ctx context.Context, rawURL string) (Metadata, error)
}

// Defaults.
const (
	DefaultOEmbedEndpoint = "https://noembed.com/embed"
	DefaultTimeout        = 8 * time.Second
	DefaultMaxBody        = 2 << 20
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var ErrStatus = errors.New("unexpected status code")

// Options configures HTTPEnricher.
type Options struct {
	OEmbedEndpoint string
	Timeout        time.Duration
	MaxBody        int64
}

// HTTPEnricher resolves videos through an oEmbed endpoint and everything
// else by reading the page itself.
type HTTPEnricher struct {
	client   *http.Client
	endpoint string
	maxBody  int64
	policy   *bluemonday.Policy
	log      logger.Logger
}

func NewHTTP(opts Options, log logger.Logger) *HTTPEnricher {
	if opts.OEmbedEndpoint == "" {
		opts.OEmbedEndpoint = DefaultOEmbedEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	return &HTTPEnricher{
		client:   &http.Client{Timeout: opts.Timeout},
		endpoint: opts.OEmbedEndpoint,
		maxBody:  opts.MaxBody,
		policy:   bluemonday.StrictPolicy(),
		log:      log.Named("enrich"),
	}
}

func (e *HTTPEnricher) Enrich(ctx context.Context, rawURL string) (Metadata, error) {
	if id, ok := classify.VideoID(rawURL); ok {
		return e.video(ctx, rawURL, id)
	}
	return e.page(ctx, rawURL)
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	Error      string `json:"error"`
}

func (e *HTTPEnricher) video(ctx context.Context, rawURL, id string) (Metadata, error) {
	endpoint, err := url.Parse(e.endpoint)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse oembed endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", rawURL)
	endpoint.RawQuery = q.Encode()

	body, _, err := e.get(ctx, endpoint.String(), "application/json")
	if err != nil {
		return Metadata{}, err
	}

	var resp oembedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Metadata{}, fmt.Errorf("decode oembed response: %w", err)
	}
	if resp.Error != "" {
		// The provider knows nothing about this video; that is "no data".
		e.log.Debug("oembed lookup empty", logger.String("url", rawURL), logger.String("reason", resp.Error))
	}

	return Metadata{
		VideoID:    id,
		Title:      e.clean(resp.Title),
		AuthorName: e.clean(resp.AuthorName),
	}, nil
}

func (e *HTTPEnricher) page(ctx context.Context, rawURL string) (Metadata, error) {
	body, finalURL, err := e.get(ctx, rawURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return Metadata{}, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Metadata{}, fmt.Errorf("parse page: %w", err)
	}
	tags := readMeta(doc)

	meta := Metadata{
		Title:       first(tags["og:title"], tags["twitter:title"], tags["title"]),
		Description: first(tags["og:description"], tags["twitter:description"], tags["description"]),
		ImageURL:    first(tags["og:image"], tags["og:image:url"], tags["twitter:image"]),
		Publisher:   tags["og:site_name"],
	}

	if meta.Title == "" || meta.Description == "" || meta.ImageURL == "" {
		article, err := readability.FromReader(bytes.NewReader(body), finalURL)
		if err != nil {
			e.log.Debug("readability fallback failed", logger.String("url", rawURL), logger.Error(err))
		} else {
			meta.Title = first(meta.Title, article.Title)
			meta.Description = first(meta.Description, article.Excerpt)
			meta.ImageURL = first(meta.ImageURL, article.Image)
			meta.Publisher = first(meta.Publisher, article.SiteName)
		}
	}

	meta.Title = e.clean(meta.Title)
	meta.Description = e.clean(meta.Description)
	meta.Publisher = e.clean(meta.Publisher)
	meta.ImageURL = resolveImage(finalURL, meta.ImageURL)
	return meta, nil
}

// get fetches target with browser-like headers and returns at most maxBody
// bytes of a 2xx response together with the final URL after redirects.
func (e *HTTPEnricher) get(ctx context.Context, target, accept string) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.Request.URL, nil
}

var spaces = regexp.MustCompile(`\s+`)

// clean strips markup and collapses whitespace.
func (e *HTTPEnricher) clean(s string) string {
	s = e.policy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaces.ReplaceAllLiteralString(s, " "))
}

// readMeta collects <meta> tags by property/name (lower-cased) and the
// document <title> under "title". The first occurrence wins.
func readMeta(doc *html.Node) map[string]string {
	tags := make(map[string]string)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "meta":
				name := strings.ToLower(first(getAttr(n, "property"), getAttr(n, "name")))
				content := strings.TrimSpace(getAttr(n, "content"))
				if name != "" && content != "" {
					if _, seen := tags[name]; !seen {
						tags[name] = content
					}
				}
			case "title":
				if _, seen := tags["title"]; !seen && n.FirstChild != nil {
					tags["title"] = strings.TrimSpace(n.FirstChild.Data)
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tags
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func resolveImage(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
