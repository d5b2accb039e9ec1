package decentlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultTimeout         = 60 * time.Second
	defaultMaxTries        = 5
	defaultInitialInterval = 500 * time.Millisecond

	queryPath = "/api/datasources/proxy/1/query"
)

var ErrNoSeries = errors.New("no series returned")

// Point is one measurement of one series, in long form.
type Point struct {
	Time   time.Time
	Series string
	Value  float64
}

type ClientConfig struct {
	Logger *slog.Logger
	Domain string
	APIKey string

	// BaseURL overrides https://<Domain>.
	BaseURL         string
	HTTPClient      *http.Client
	MaxTries        uint
	InitialInterval time.Duration
}

func (c *ClientConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Domain == "" && c.BaseURL == "" {
		return errors.New("domain is required")
	}
	if c.APIKey == "" {
		return errors.New("api key is required")
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://" + c.Domain
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.MaxTries == 0 {
		c.MaxTries = defaultMaxTries
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = defaultInitialInterval
	}
	return nil
}

type Client struct {
	cfg *ClientConfig
	log *slog.Logger
}

func NewClient(cfg *ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, log: cfg.Logger}, nil
}

type queryResponse struct {
	Results []struct {
		Error  string `json:"error"`
		Series []struct {
			Tags    map[string]string `json:"tags"`
			Columns []string          `json:"columns"`
			Values  [][]*float64      `json:"values"`
		} `json:"series"`
	} `json:"results"`
	Error string `json:"error"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// Query runs the query and returns its points ordered by time, then series.
func (c *Client) Query(ctx context.Context, q Query) ([]Point, error) {
	influxQL := BuildQuery(q)
	c.log.Debug("querying decentlab", "query", influxQL)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval

	attempt := 0
	resp, err := backoff.Retry(ctx, func() (*queryResponse, error) {
		if attempt > 0 {
			c.log.Warn("Failed to query decentlab, retrying", "attempt", attempt)
		}
		attempt++
		return c.do(ctx, influxQL)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.cfg.MaxTries))
	if err != nil {
		return nil, fmt.Errorf("failed to query decentlab: %w", err)
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("decentlab query failed: %s", resp.Error)
	}
	if len(resp.Results) == 0 {
		return nil, ErrNoSeries
	}
	result := resp.Results[0]
	if result.Error != "" {
		return nil, fmt.Errorf("decentlab query failed: %s", result.Error)
	}
	if len(result.Series) == 0 {
		return nil, ErrNoSeries
	}

	var points []Point
	for _, s := range result.Series {
		timeCol, valueCol := -1, -1
		for i, col := range s.Columns {
			switch col {
			case "time":
				timeCol = i
			case "value":
				valueCol = i
			}
		}
		if timeCol < 0 || valueCol < 0 {
			return nil, fmt.Errorf("series %s lacks time or value column", s.Tags["uqk"])
		}
		for _, row := range s.Values {
			if len(row) <= timeCol || len(row) <= valueCol || row[timeCol] == nil {
				continue
			}
			value := math.NaN()
			if row[valueCol] != nil {
				value = *row[valueCol]
			}
			points = append(points, Point{
				Time:   time.UnixMilli(int64(*row[timeCol])).UTC(),
				Series: s.Tags["uqk"],
				Value:  value,
			})
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].Time.Equal(points[j].Time) {
			return points[i].Time.Before(points[j].Time)
		}
		return points[i].Series < points[j].Series
	})
	return points, nil
}

func (c *Client) do(ctx context.Context, influxQL string) (*queryResponse, error) {
	params := url.Values{}
	params.Set("db", "main")
	params.Set("epoch", "ms")
	params.Set("q", influxQL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+queryPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		err := &statusError{code: res.StatusCode, body: string(body)}
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var out queryResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return &out, nil
}
