package bureau

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"card_underwriting/internal/domain"
)

const apiKeyHeader = "X-Bureau-API-Key"

// HTTPClient talks to a bureau that serves JSON reports at
// GET {base}/v1/reports/{taxID}.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) FetchReport(ctx context.Context, taxID string) (*domain.CreditBureauReport, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: base url is empty", ErrUnavailable)
	}

	endpoint := fmt.Sprintf("%s/v1/reports/%s", c.baseURL, url.PathEscape(taxID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrReportNotFound
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var report domain.CreditBureauReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	report.TaxID = taxID
	return &report, nil
}
