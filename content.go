package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ArticleSource hands out candidate articles for the research phase.
// Implementations may return fewer than count; zero results with a nil
// error is not allowed — report the failure so callers can retry.
type ArticleSource interface {
	FetchCandidates(ctx context.Context, count int) ([]Article, error)
}

const (
	wikipediaAPIBase = "https://en.wikipedia.org/api/rest_v1"

	minExtractLength = 200
	fetchRetries     = 3
	fetchRetryDelay  = 500 * time.Millisecond
	qualityAttempts  = 20
)

type wikipediaSource struct {
	client *http.Client
	base   string
}

func newWikipediaSource() *wikipediaSource {
	return &wikipediaSource{
		client: &http.Client{Timeout: 10 * time.Second},
		base:   wikipediaAPIBase,
	}
}

type wikipediaSummary struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	PageID      int    `json:"pageid"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// isQualityArticle filters out disambiguation pages and stubs, which make
// for unplayable rounds.
func isQualityArticle(s wikipediaSummary) bool {
	title := strings.ToLower(s.Title)
	extract := strings.ToLower(s.Extract)

	if strings.Contains(title, "disambiguation") || strings.Contains(extract, "may refer to") {
		return false
	}
	return len(s.Extract) >= minExtractLength
}

func (w *wikipediaSource) fetchRandom(ctx context.Context) (wikipediaSummary, error) {
	var lastErr error

	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return wikipediaSummary{}, ctx.Err()
			case <-time.After(fetchRetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.base+"/page/random/summary", nil)
		if err != nil {
			return wikipediaSummary{}, err
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		var summary wikipediaSummary
		err = json.NewDecoder(resp.Body).Decode(&summary)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("wikipedia returned %d", resp.StatusCode)
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}

		return summary, nil
	}

	return wikipediaSummary{}, lastErr
}

// FetchCandidates gathers up to count quality articles. Partial results are
// fine; zero results come back as an error.
func (w *wikipediaSource) FetchCandidates(ctx context.Context, count int) ([]Article, error) {
	articles := make([]Article, 0, count)

	for attempt := 0; attempt < qualityAttempts && len(articles) < count; attempt++ {
		summary, err := w.fetchRandom(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if !isQualityArticle(summary) {
			continue
		}

		articles = append(articles, Article{
			ID:      strconv.Itoa(summary.PageID),
			Title:   summary.Title,
			Extract: summary.Extract,
			URL:     summary.ContentURLs.Desktop.Page,
		})
	}

	if len(articles) == 0 {
		return nil, fmt.Errorf("no usable articles after %d attempts", qualityAttempts)
	}
	return articles, nil
}
