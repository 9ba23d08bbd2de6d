package queueaccess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vidintel/internal/api"
	"vidintel/internal/services"
)

// ErrAPIUnavailable reports that no daemon API is configured or reachable.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// HTTPAccess talks to a running daemon over its HTTP API.
type HTTPAccess struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewHTTPAccess builds a client for bind ("host:port" or a URL). An empty
// bind yields ErrAPIUnavailable.
func NewHTTPAccess(bind, token string) (*HTTPAccess, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &HTTPAccess{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Status fetches the daemon status snapshot.
func (a *HTTPAccess) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := a.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

func (a *HTTPAccess) Stats(ctx context.Context) (map[string]int, error) {
	status, err := a.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Workflow.JobStats, nil
}

func (a *HTTPAccess) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	query := url.Values{}
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}
	var out api.JobListResponse
	if err := a.do(ctx, http.MethodGet, "/api/jobs", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (a *HTTPAccess) Describe(ctx context.Context, id string) (api.Job, error) {
	var out api.JobResponse
	err := a.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &out)
	return out.Job, err
}

func (a *HTTPAccess) Create(ctx context.Context, req api.CreateJobRequest) (api.Job, error) {
	var out api.JobResponse
	err := a.do(ctx, http.MethodPost, "/api/jobs", nil, req, &out)
	return out.Job, err
}

func (a *HTTPAccess) Cancel(ctx context.Context, id string) (api.ActionResponse, error) {
	var out api.ActionResponse
	err := a.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, &out)
	return out, err
}

func (a *HTTPAccess) Retry(ctx context.Context, id string) (api.ActionResponse, error) {
	var out api.ActionResponse
	err := a.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/retry", nil, nil, &out)
	return out, err
}

func (a *HTTPAccess) Logs(ctx context.Context, id string, after int64, limit int) (api.JobLogsResponse, error) {
	query := url.Values{}
	if after > 0 {
		query.Set("after", strconv.FormatInt(after, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out api.JobLogsResponse
	err := a.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/logs", query, nil, &out)
	return out, err
}

func (a *HTTPAccess) Entities(ctx context.Context, videoID string) (api.EntitiesResponse, error) {
	var out api.EntitiesResponse
	err := a.do(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(videoID)+"/entities", nil, nil, &out)
	return out, err
}

func (a *HTTPAccess) Chapters(ctx context.Context, videoID, source string) (api.ChaptersResponse, error) {
	query := url.Values{}
	if strings.TrimSpace(source) != "" {
		query.Set("source", source)
	}
	var out api.ChaptersResponse
	err := a.do(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(videoID)+"/chapters", query, nil, &out)
	return out, err
}

func (a *HTTPAccess) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if a == nil {
		return ErrAPIUnavailable
	}
	endpoint := a.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload)
	message := strings.TrimSpace(payload.Error)
	if message == "" {
		message = fmt.Sprintf("%s %s returned status %d", method, path, resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "api", path, message, nil)
	case http.StatusBadRequest:
		return services.Wrap(services.ErrValidation, "api", path, message, nil)
	case http.StatusUnauthorized:
		return services.Wrap(services.ErrConfiguration, "api", path, message+" (check paths.api_token)", nil)
	default:
		return services.Wrap(services.ErrTransient, "api", path, message, nil)
	}
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
