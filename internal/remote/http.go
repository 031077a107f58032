package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
)

// Doer sends HTTP requests. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	// DefaultTimeout bounds a single request when HTTPConfig.Timeout is zero.
	DefaultTimeout = 60 * time.Second

	// DefaultPageSize is used when HTTPConfig.PageSize is zero.
	DefaultPageSize = 100

	// maxErrorBody caps how much of an error response ends up in messages.
	maxErrorBody = 512
)

// HTTPConfig configures an HTTPSource.
type HTTPConfig struct {
	// BaseURL is the API root; the entity type is appended as a path segment.
	BaseURL string

	// Token is sent as a bearer token when non-empty.
	Token string

	// PageSize is the number of items requested per page.
	PageSize int

	// Timeout bounds each request. Ignored when a custom Doer is set.
	Timeout time.Duration

	// Client overrides the HTTP client.
	Client Doer

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// HTTPSource reads one entity type from a paged JSON API.
//
// Changes are requested with
//
//	GET {base}/{type}?lastUpdated=<RFC3339Nano>&page=N&pageSize=M
//
// and the live id listing with the same path plus fields=id. Every
// response has the form {"items": [...], "pager": {"page", "pageCount"}}.
type HTTPSource[E entity.Entity] struct {
	typ      entity.Type
	endpoint *url.URL
	token    string
	pageSize int
	client   Doer
	codec    entity.Codec[E]
	logger   *slog.Logger
}

type pageResponse struct {
	Items []json.RawMessage `json:"items"`
	Pager pager             `json:"pager"`
}

type pager struct {
	Page      int `json:"page"`
	PageCount int `json:"pageCount"`
}

type idItem struct {
	ID string `json:"id"`
}

// NewHTTPSource creates a source for typ.
func NewHTTPSource[E entity.Entity](typ entity.Type, cfg HTTPConfig, codec entity.Codec[E]) (*HTTPSource[E], error) {
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported URL scheme %q", base.Scheme)
	}
	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("remote: page size must not be negative")
	}

	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPSource[E]{
		typ:      typ,
		endpoint: base.JoinPath(string(typ)),
		token:    cfg.Token,
		pageSize: pageSize,
		client:   client,
		codec:    codec,
		logger:   logger.With("component", "remote", "entity_type", string(typ)),
	}, nil
}

// FetchSince implements engine.Source.
//
// The server filter is inclusive, so items at exactly since are dropped
// here.
func (s *HTTPSource[E]) FetchSince(ctx context.Context, since time.Time) ([]E, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("lastUpdated", since.UTC().Format(time.RFC3339Nano))
	}

	var out []E
	err := s.pages(ctx, query, func(items []json.RawMessage) error {
		for _, raw := range items {
			e, err := s.codec.Decode(raw)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", engine.ErrNetwork, s.typ, err)
			}
			if !e.LastUpdated().After(since) {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListIDs implements engine.Source.
func (s *HTTPSource[E]) ListIDs(ctx context.Context) ([]string, error) {
	query := url.Values{}
	query.Set("fields", entity.KeyID)

	var ids []string
	err := s.pages(ctx, query, func(items []json.RawMessage) error {
		for _, raw := range items {
			var item idItem
			if err := json.Unmarshal(raw, &item); err != nil {
				return fmt.Errorf("%w: %s: decode id: %w", engine.ErrNetwork, s.typ, err)
			}
			if item.ID == "" {
				return fmt.Errorf("%w: %s: item without id", engine.ErrNetwork, s.typ)
			}
			ids = append(ids, item.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// pages walks every page of the listing described by query.
func (s *HTTPSource[E]) pages(ctx context.Context, query url.Values, each func([]json.RawMessage) error) error {
	query.Set("pageSize", strconv.Itoa(s.pageSize))
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		resp, err := s.get(ctx, query)
		if err != nil {
			return err
		}
		if err := each(resp.Items); err != nil {
			return err
		}
		if resp.Pager.PageCount <= page || len(resp.Items) == 0 {
			return nil
		}
	}
}

func (s *HTTPSource[E]) get(ctx context.Context, query url.Values) (*pageResponse, error) {
	u := *s.endpoint
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", engine.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: GET %s: %w", engine.ErrNetwork, u.Path, err)
	}
	defer resp.Body.Close()

	s.logger.Debug("Remote request",
		"path", u.Path,
		"page", query.Get("page"),
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: GET %s: %s", engine.ErrAuth, u.Path, statusText(resp))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: GET %s: %s", engine.ErrNetwork, u.Path, statusText(resp))
	}

	var page pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: GET %s: decode response: %w", engine.ErrNetwork, u.Path, err)
	}
	return &page, nil
}

// statusText renders the status line plus the start of the body.
func statusText(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(body) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, body)
}
