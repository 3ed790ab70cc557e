// Package insightly provides the HTTP client for the Insightly v2.2 API.
// It implements the CRM secondary ports; calls are never retried.
package insightly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/example/stagetrack/internal/apperr"
	"github.com/example/stagetrack/internal/config"
	"github.com/example/stagetrack/internal/logger"
	"github.com/example/stagetrack/internal/models"
	"github.com/example/stagetrack/internal/ports/secondary"
	"github.com/example/stagetrack/internal/version"
)

var _ secondary.CRM = (*Client)(nil)

// TotalCountHeader carries the size of the full result set on paged searches.
const TotalCountHeader = "X-Total-Count"

const (
	pathCustomFields   = "/CustomFields"
	pathPipelineStages = "/PipelineStages"
	pathOpportunities  = "/opportunities"
	pathSearch         = "/opportunities/Search"
)

// Client is the HTTP client for the Insightly API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a new Insightly API client.
func New(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		log:        log,
	}
}

// FetchCustomFieldDefinitions fetches all custom field definitions.
func (c *Client) FetchCustomFieldDefinitions(ctx context.Context) ([]models.CustomFieldDefinition, error) {
	var defs []models.CustomFieldDefinition
	if _, err := c.getJSON(ctx, pathCustomFields, nil, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// FetchPipelineStages fetches the stages of every pipeline.
func (c *Client) FetchPipelineStages(ctx context.Context) ([]models.PipelineStage, error) {
	var stages []models.PipelineStage
	if _, err := c.getJSON(ctx, pathPipelineStages, nil, &stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// FetchOpenOpportunities drains OpenOpportunityPages into one slice.
func (c *Client) FetchOpenOpportunities(ctx context.Context) ([]*models.Opportunity, error) {
	var all []*models.Opportunity
	for page, err := range c.OpenOpportunityPages(ctx) {
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	return all, nil
}

// OpenOpportunityPages yields pages of open opportunities until the number
// retrieved reaches the total reported by the server. A page error is yielded
// once and ends the sequence.
func (c *Client) OpenOpportunityPages(ctx context.Context) iter.Seq2[[]*models.Opportunity, error] {
	return func(yield func([]*models.Opportunity, error) bool) {
		retrieved := 0
		for {
			query := url.Values{}
			query.Set("opportunity_state", models.OpportunityStateOpen)
			query.Set("skip", strconv.Itoa(retrieved))
			query.Set("count_total", "true")

			var page []*models.Opportunity
			header, err := c.getJSON(ctx, pathSearch, query, &page)
			if err != nil {
				yield(nil, err)
				return
			}

			total, err := strconv.Atoi(header.Get(TotalCountHeader))
			if err != nil {
				yield(nil, apperr.Upstream("GET "+pathSearch, http.StatusOK, "missing or invalid %s header %q", TotalCountHeader, header.Get(TotalCountHeader)))
				return
			}

			if len(page) == 0 && retrieved < total {
				yield(nil, apperr.Upstream("GET "+pathSearch, http.StatusOK, "empty page at skip=%d before reaching total %d", retrieved, total))
				return
			}

			retrieved += len(page)
			c.log.Debugw("fetched opportunity page", "count", len(page), "retrieved", retrieved, "total", total)

			if !yield(page, nil) {
				return
			}
			if retrieved >= total {
				return
			}
		}
	}
}

// Save writes the whole opportunity back.
func (c *Client) Save(ctx context.Context, opp *models.Opportunity) error {
	body, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("encode opportunity %d: %w", opp.ID, err)
	}

	path := fmt.Sprintf("%s/%d", pathOpportunities, opp.ID)
	resp, err := c.do(ctx, http.MethodPut, path, nil, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) (http.Header, error) {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "GET "+path, err, "decode response")
	}
	return resp.Header, nil
}

// do sends one request and returns the response only for 200 OK.
// The caller closes the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	op := method + " " + path

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, op, err, "rate limiter")
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debugw("insightly request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, op, err, "http request")
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		c.log.Debugw("insightly non-success response", "method", method, "url", reqURL, "status", resp.StatusCode, "body", string(snippet))
		return nil, apperr.Upstream(op, resp.StatusCode, "Insightly api %s error: http status %d", method, resp.StatusCode)
	}

	return resp, nil
}
