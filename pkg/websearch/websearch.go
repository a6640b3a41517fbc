package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/allionai/allion/internal/models"
)

// Domains whose results get a confidence bonus during scoring.
var trustedDomains = []string{
	"nhtsa.gov",
	"obd-codes.com",
	"repairpal.com",
	"yourmechanic.com",
	"alldata.com",
	"mitchell1.com",
}

type SearcherConfig struct {
	// BaseURL of the HTML search endpoint. Defaults to DuckDuckGo's
	// non-JS endpoint, which needs no API key.
	BaseURL    string
	MaxResults int
	RateLimit  float64 // requests per second
	Timeout    time.Duration
	UserAgent  string
}

type Searcher struct {
	config  SearcherConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config SearcherConfig) *Searcher {
	if config.BaseURL == "" {
		config.BaseURL = "https://html.duckduckgo.com/html/"
	}
	if config.MaxResults == 0 {
		config.MaxResults = 5
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "allion-agent/1.0"
	}

	return &Searcher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Search runs the query against the HTML endpoint and extracts results.
func (s *Searcher) Search(ctx context.Context, query string) ([]models.WebResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s?q=%s", s.config.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	return s.extractResults(doc), nil
}

func (s *Searcher) extractResults(doc *goquery.Document) []models.WebResult {
	var results []models.WebResult

	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find(".result__a")
		href, ok := link.Attr("href")
		if !ok {
			return true
		}

		result := models.WebResult{
			Title:   cleanText(link.Text()),
			URL:     resolveRedirect(href),
			Snippet: cleanText(sel.Find(".result__snippet").Text()),
		}
		if result.Title == "" || result.URL == "" {
			return true
		}
		result.Trusted = IsTrusted(result.URL)

		results = append(results, result)
		return len(results) < s.config.MaxResults
	})

	return results
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if !u.IsAbs() {
		return ""
	}
	return href
}

func IsTrusted(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, domain := range trustedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func cleanText(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}
