// internal/apiclient/client.go
//
// REST client for the store backend.
//
// Context
// -------
//   - Every dashboard screen reads and writes records through the backend's
//     JSON API (/announcements/, /complaints/, /equipment/, /users/,
//     /temperature/logs, …).  This package is the only code that speaks HTTP
//     to it.
//   - Transport is hashicorp/go-retryablehttp: connection errors and 5xx
//     responses are retried with backoff, then the last response is passed
//     through so the caller sees the backend's own status and detail.
//     POST and PATCH are sent once; a retried create would store a
//     duplicate record.
//   - Identical concurrent List calls share one request (singleflight).  The
//     shared request is detached from any one caller's cancellation; each
//     caller still stops waiting when its own context ends.
//     Single records are cached in a small LRU that writes invalidate.
//
// Public workflow
// ---------------
//  1. cli, err := apiclient.New(cfg, log)          // during boot.
//  2. recs, err := cli.List(ctx, "/equipment/", q) // from a screen.
//  3. rec, err := cli.Update(ctx, "/equipment/", "7", body)
//  4. _, err = cli.Command(ctx, http.MethodPatch, "/users/", "7", "activate", nil)
//
// Collection paths are used exactly as configured, trailing slash included.
// Item paths are the collection path without its trailing slash plus "/id".
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/storedash/internal/cache"
	"github.com/yanizio/storedash/internal/metrics"
)

// maxBody caps how much of a response we read.
const maxBody = 8 << 20

//
// SECTION 1.  Public façade
//

// Record is one backend row as decoded JSON.  Numbers are float64.
type Record = map[string]any

// Config controls the transport.  Zero values fall back to sane defaults.
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	CacheSize    int
	CacheTTL     time.Duration
}

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	base  string
	token string
	http  *retryablehttp.Client
	sfg   singleflight.Group
	cache *cache.LRU[string, Record]
	log   *zap.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	hc := NewHTTP(cfg.Retries, cfg.Timeout, log)
	hc.CheckRetry = retryIdempotent
	if cfg.RetryWaitMin > 0 {
		hc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		hc.RetryWaitMax = cfg.RetryWaitMax
	}

	return &Client{
		base:  strings.TrimSuffix(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  hc,
		cache: cache.New[string, Record](cfg.CacheSize, cfg.CacheTTL),
		log:   log,
	}, nil
}

// NewHTTP returns a retrying HTTP client that logs through log and hands the
// final response back instead of replacing it with an error.  Webhook actions
// share it.
func NewHTTP(retries int, timeout time.Duration, log *zap.Logger) *retryablehttp.Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = retries
	hc.HTTPClient.Timeout = timeout
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	hc.Logger = leveled{log.Sugar()}
	return hc
}

//
// SECTION 2.  Resource operations
//

// List fetches a collection.  The backend answers either with a bare array
// or with a paginated object whose records sit under "items"; both decode to
// the same slice.  Callers must not mutate the returned records.
func (c *Client) List(ctx context.Context, resource string, q url.Values) ([]Record, error) {
	key := resource + "?" + q.Encode()
	shared := context.WithoutCancel(ctx)
	ch := c.sfg.DoChan(key, func() (any, error) {
		var raw json.RawMessage
		if err := c.do(shared, http.MethodGet, resource, resource, q, nil, &raw); err != nil {
			return nil, err
		}
		return decodeList(raw)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Record), nil
	}
}

// Get fetches one record, serving from the cache when fresh.
func (c *Client) Get(ctx context.Context, resource, id string) (Record, error) {
	p := itemPath(resource, id)
	if rec, ok := c.cache.Get(p); ok {
		metrics.APICacheHits.Inc()
		return clone(rec), nil
	}

	var rec Record
	if err := c.do(ctx, http.MethodGet, resource, p, nil, nil, &rec); err != nil {
		return nil, err
	}
	c.cache.Add(p, rec)
	return clone(rec), nil
}

// Create POSTs body to the collection and returns the stored record.
func (c *Client) Create(ctx context.Context, resource string, body any) (Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodPost, resource, resource, nil, body, &rec); err != nil {
		return nil, err
	}
	if id := RecordID(rec); id != "" {
		c.cache.Add(itemPath(resource, id), clone(rec))
	}
	return rec, nil
}

// Update PUTs body to the item and returns the stored record.
func (c *Client) Update(ctx context.Context, resource, id string, body any) (Record, error) {
	p := itemPath(resource, id)
	c.cache.Remove(p)

	var rec Record
	if err := c.do(ctx, http.MethodPut, resource, p, nil, body, &rec); err != nil {
		return nil, err
	}
	c.cache.Add(p, clone(rec))
	return rec, nil
}

// Delete removes the item.
func (c *Client) Delete(ctx context.Context, resource, id string) error {
	p := itemPath(resource, id)
	c.cache.Remove(p)
	return c.do(ctx, http.MethodDelete, resource, p, nil, nil, nil)
}

// Command calls a sub-resource of one item, such as
// PATCH /users/7/activate, and returns the decoded answer (often just a
// message).  The cached item is dropped since the command may change it.
func (c *Client) Command(ctx context.Context, method, resource, id, name string, body any) (Record, error) {
	item := itemPath(resource, id)
	c.cache.Remove(item)

	var out Record
	if err := c.do(ctx, method, resource, item+"/"+strings.Trim(name, "/"), nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordID renders a record's "id" as a string.  JSON numbers lose their
// ".0"; a missing id yields "".
func RecordID(rec Record) string {
	switch id := rec["id"].(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

//
// SECTION 3.  Transport
//

func (c *Client) do(ctx context.Context, method, resource, path string, q url.Values, body, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var payload any
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}

	if !idempotent(method) {
		ctx = context.WithValue(ctx, sendOnceKey{}, true)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.APIRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		metrics.APIRequests.WithLabelValues(resource, method, "error").Inc()
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.APIRequests.WithLabelValues(resource, method, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newError(resp.StatusCode, raw)
		c.log.Debug("backend error",
			zap.String("method", method), zap.String("path", path),
			zap.Int("status", apiErr.Status), zap.String("detail", apiErr.Detail))
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type sendOnceKey struct{}

// retryIdempotent is retryablehttp's default policy except that requests
// marked by do as non-idempotent are never retried.
func retryIdempotent(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if once, _ := ctx.Value(sendOnceKey{}).(bool); once {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func idempotent(method string) bool {
	return method != http.MethodPost && method != http.MethodPatch
}

func decodeList(raw json.RawMessage) ([]Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var recs []Record
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
	case '{':
		var page struct {
			Items []Record `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		recs = page.Items
	default:
		return nil, errors.New("decode list: unexpected JSON")
	}
	return recs, nil
}

func itemPath(resource, id string) string {
	return strings.TrimSuffix(resource, "/") + "/" + url.PathEscape(id)
}

func clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l leveled) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
