package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/roombook/internal/domain"
	"go.uber.org/zap"
)

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	BaseURL     string
	APIKey      string
	AccessToken string
	Timeout     time.Duration
}

// RESTClient speaks the PostgREST dialect exposed by the hosted backend.
type RESTClient struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRESTClient creates a client for the backend at cfg.BaseURL.
func NewRESTClient(cfg RESTConfig, logger *zap.Logger) *RESTClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	token := cfg.AccessToken
	if token == "" {
		token = cfg.APIKey
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Upsert inserts record or merges it into the existing row with the same id.
func (c *RESTClient) Upsert(ctx context.Context, table string, record map[string]any) error {
	if err := ValidateRecord(table, record); err != nil {
		return err
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode %s record: %v", ErrPermanent, table, err)
	}
	u := c.tableURL(table, url.Values{"on_conflict": {"id"}})
	req, err := c.newRequest(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return checkStatus(resp)
}

// Delete removes the row with the given id. Deleting a missing row succeeds.
func (c *RESTClient) Delete(ctx context.Context, table, id string) error {
	if err := ValidateTable(table); err != nil {
		return err
	}
	u := c.tableURL(table, url.Values{"id": {"eq." + id}})
	req, err := c.newRequest(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp)
}

// ListRooms returns every remote room ordered by name.
func (c *RESTClient) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	q := url.Values{"select": {"*"}, "order": {"name.asc"}}
	if err := c.getJSON(ctx, c.tableURL(domain.TableRooms, q), &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// ListBookingsSince returns bookings updated strictly after since, oldest first.
func (c *RESTClient) ListBookingsSince(ctx context.Context, since time.Time) ([]domain.Booking, error) {
	q := url.Values{"select": {"*"}, "order": {"updated_at.asc"}}
	if !since.IsZero() {
		q.Set("updated_at", "gt."+since.UTC().Format(time.RFC3339Nano))
	}
	var bookings []domain.Booking
	if err := c.getJSON(ctx, c.tableURL(domain.TableBookings, q), &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// Ping checks that the backend answers.
func (c *RESTClient) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: health check returned %d", ErrTransient, resp.StatusCode)
	}
	return nil
}

func (c *RESTClient) tableURL(table string, q url.Values) string {
	return c.baseURL + "/rest/v1/" + url.PathEscape(table) + "?" + q.Encode()
}

func (c *RESTClient) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrPermanent, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *RESTClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("remote request failed", zap.String("method", req.Method), zap.String("url", req.URL.Path), zap.Error(err))
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransient, req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func (c *RESTClient) getJSON(ctx context.Context, u string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}
	return nil
}

// checkStatus maps HTTP status codes onto the transient/permanent taxonomy.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: unexpected status code %d: %s", ErrTransient, resp.StatusCode, string(body))
	default:
		return fmt.Errorf("%w: unexpected status code %d: %s", ErrPermanent, resp.StatusCode, string(body))
	}
}
