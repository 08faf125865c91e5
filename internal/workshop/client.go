// Package workshop reads mod metadata from Steam Workshop item pages.
package workshop

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://steamcommunity.com/sharedfiles/filedetails/"

// ErrTimeout is returned when some pages still time out after every retry
// round. The mods resolved so far are returned alongside it.
var ErrTimeout = errors.New("workshop pages timed out")

var (
	workshopIDRe = regexp.MustCompile(`id=(\d+)`)
	modIDSepRe   = regexp.MustCompile(`(?i)Mod ID\s*:`)
	digitsRe     = regexp.MustCompile(`^\d+$`)
)

// Mod is one workshop item. Required lists the workshop ids it depends on.
type Mod struct {
	URL        string   `json:"url"`
	Name       string   `json:"name"`
	WorkshopID string   `json:"workshop_id"`
	ModIDs     []string `json:"mod_ids"`
	Required   []string `json:"required,omitempty"`
}

type Client struct {
	http    *resty.Client
	baseURL string
	retries int
	log     *zap.Logger
}

type Option func(*Client)

// WithBaseURL points the client at another item page endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRetryRounds sets how many extra rounds timed out pages get.
func WithRetryRounds(n int) Option {
	return func(c *Client) { c.retries = n }
}

func NewClient(timeout time.Duration, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	rc := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(timeout).
		SetHeader("User-Agent", "zomboidbot/1.0").
		SetHeader("Accept-Language", "en-US")

	c := &Client{http: rc, baseURL: DefaultBaseURL, retries: 2, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModURL returns the item page for a workshop id.
func (c *Client) ModURL(id string) string {
	return c.baseURL + "?id=" + id
}

// ParseWorkshopID extracts the numeric id from an item URL.
func ParseWorkshopID(u string) string {
	if m := workshopIDRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

// IsWorkshopID reports whether s is a bare numeric workshop id.
func IsWorkshopID(s string) bool {
	return digitsRe.MatchString(s)
}

// Validate reports whether the item exists. Steam answers unknown ids with a
// page headed "Sorry!".
func (c *Client) Validate(ctx context.Context, idOrURL string) (bool, error) {
	u := idOrURL
	if IsWorkshopID(u) {
		u = c.ModURL(u)
	}
	doc, err := c.fetch(ctx, u)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(doc.Find("h1").First().Text()) != "Sorry!", nil
}

// Resolve fetches the item at u and every item it requires, keyed by
// workshop id. Pages that time out are retried in later rounds.
func (c *Client) Resolve(ctx context.Context, u string) (map[string]Mod, error) {
	mods := map[string]Mod{}
	visited := map[string]bool{}
	pending := []string{u}

	for round := 0; round <= c.retries && len(pending) > 0; round++ {
		if round > 0 {
			c.log.Info("retrying timed out workshop pages", zap.Int("round", round), zap.Strings("urls", pending))
		}
		var timedOut []string
		for _, p := range pending {
			to, err := c.resolve(ctx, p, mods, visited)
			if err != nil {
				return mods, err
			}
			timedOut = append(timedOut, to...)
		}
		pending = timedOut
	}
	if len(pending) > 0 {
		return mods, fmt.Errorf("%w: %s", ErrTimeout, strings.Join(pending, ", "))
	}
	return mods, nil
}

// resolve walks one page and its requirements depth-first. It returns the
// URLs that timed out.
func (c *Client) resolve(ctx context.Context, u string, mods map[string]Mod, visited map[string]bool) ([]string, error) {
	id := ParseWorkshopID(u)
	key := id
	if key == "" {
		key = u
	}
	if visited[key] {
		return nil, nil
	}

	doc, err := c.fetch(ctx, u)
	if isTimeout(err) && ctx.Err() == nil {
		c.log.Warn("workshop request timed out", zap.String("url", u))
		return []string{u}, nil
	}
	if err != nil {
		return nil, err
	}
	visited[key] = true

	mod := Mod{
		URL:        u,
		Name:       strings.TrimSpace(doc.Find(".workshopItemTitle").First().Text()),
		WorkshopID: id,
		ModIDs:     ParseModIDs(doc.Find("#highlightContent").First()),
	}

	var links []string
	doc.Find("#RequiredItems a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if req := ParseWorkshopID(href); req != "" && req != id && !slices.Contains(mod.Required, req) {
			mod.Required = append(mod.Required, req)
			links = append(links, href)
		}
	})
	mods[id] = mod

	var timedOut []string
	for _, href := range links {
		to, err := c.resolve(ctx, href, mods, visited)
		if err != nil {
			return timedOut, err
		}
		timedOut = append(timedOut, to...)
	}
	return timedOut, nil
}

// ParseModIDs reads the "Mod ID: x" entries of an item description. An entry
// runs until the next entry or the end of its line.
func ParseModIDs(desc *goquery.Selection) []string {
	desc.Find("br").ReplaceWithHtml("\n")

	var ids []string
	for _, line := range strings.Split(desc.Text(), "\n") {
		parts := modIDSepRe.Split(line, -1)
		for _, p := range parts[1:] {
			p = strings.TrimSpace(p)
			if p != "" && !slices.Contains(ids, p) {
				ids = append(ids, p)
			}
		}
	}
	return ids
}

func (c *Client) fetch(ctx context.Context, u string) (*goquery.Document, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", u, resp.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", u, err)
	}
	return doc, nil
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
