// Package source loads cohort ranking lists from a JSON file or an HTTP
// backend and tracks their loading state.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/pkg/logger"
)

const maxPayloadBytes = 64 << 20

// Fetcher retrieves the full ranking list of one cohort.
type Fetcher interface {
	Fetch(ctx context.Context, cohort model.Cohort) ([]model.RankedRecord, error)
}

// FileFetcher reads a JSON file holding either an object keyed by cohort
// ({"u12-boys": [...]}) or one list covering every cohort, which is then
// filtered by age group and gender.
type FileFetcher struct {
	path   string
	logger logger.Logger
}

// NewFileFetcher creates a fetcher for path.
func NewFileFetcher(path string, l logger.Logger) *FileFetcher {
	if l == nil {
		l = logger.Get().Named("source")
	}
	return &FileFetcher{path: path, logger: l}
}

// Path returns the file read by the fetcher.
func (f *FileFetcher) Path() string { return f.path }

// Fetch reads and normalizes the cohort's list.
func (f *FileFetcher) Fetch(ctx context.Context, cohort model.Cohort) ([]model.RankedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: %w", f.path, ErrMalformed)
	}

	doc := gjson.ParseBytes(data)
	var keyed gjson.Result
	if doc.IsObject() {
		doc.ForEach(func(key, value gjson.Result) bool {
			if strings.EqualFold(key.String(), cohort.Key) {
				keyed = value
				return false
			}
			return true
		})
	}

	if keyed.Exists() {
		records, dropped, err := normalizeResult(keyed)
		f.reportDropped(ctx, cohort, dropped)
		return records, err
	}

	records, dropped, err := normalizeResult(doc)
	if err != nil {
		return nil, err
	}
	f.reportDropped(ctx, cohort, dropped)
	return filter(records, cohort), nil
}

func (f *FileFetcher) reportDropped(ctx context.Context, cohort model.Cohort, dropped int) {
	if dropped > 0 {
		f.logger.Warn(ctx, "skipped entries without an id",
			logger.String("cohort", cohort.Key),
			logger.Int("dropped", dropped),
		)
	}
}

// filter keeps records of the cohort's age group and gender. Games played
// is left to the sort engine.
func filter(records []model.RankedRecord, cohort model.Cohort) []model.RankedRecord {
	scope := model.Cohort{AgeGroup: cohort.AgeGroup, Gender: cohort.Gender}
	out := records[:0]
	for i := range records {
		if scope.Includes(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

// HTTPFetcher requests GET {base}/rankings?age_group=..&gender=.. from the
// rankings backend.
type HTTPFetcher struct {
	base   string
	client *http.Client
	logger logger.Logger
}

// NewHTTPFetcher creates a fetcher for the backend at base. A nil client
// gets one with timeout.
func NewHTTPFetcher(base string, client *http.Client, timeout time.Duration, l logger.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if l == nil {
		l = logger.Get().Named("source")
	}
	return &HTTPFetcher{base: strings.TrimRight(base, "/"), client: client, logger: l}
}

// Fetch requests and normalizes the cohort's list.
func (h *HTTPFetcher) Fetch(ctx context.Context, cohort model.Cohort) ([]model.RankedRecord, error) {
	q := url.Values{}
	q.Set("age_group", cohort.AgeGroup)
	q.Set("gender", cohort.Gender)
	endpoint := h.base + "/rankings?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("requesting %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	records, dropped, err := normalize(data)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		h.logger.Warn(ctx, "skipped entries without an id",
			logger.String("cohort", cohort.Key),
			logger.Int("dropped", dropped),
		)
	}
	return records, nil
}
