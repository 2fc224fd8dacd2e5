// Package envipath talks to an enviPath instance: it submits pathway
// predictions, polls them to completion and looks up the rules behind a
// reaction.
package envipath

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vanshika/cts-envipath/internal/domain"
)

var (
	// ErrPollTimeout is returned when a pathway does not complete in time.
	ErrPollTimeout = errors.New("timed out waiting for pathway prediction")

	// ErrNoLocation is returned when a prediction is accepted without naming the new pathway.
	ErrNoLocation = errors.New("prediction response carries no pathway location")
)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// IsUpstreamError reports whether err was caused by the enviPath instance
// itself: an error status, a missing pathway location, a prediction that
// never completed or an open circuit breaker.
func IsUpstreamError(err error) bool {
	var statusErr *StatusError
	switch {
	case err == nil:
		return false
	case errors.As(err, &statusErr):
		return true
	case errors.Is(err, ErrPollTimeout), errors.Is(err, ErrNoLocation):
		return true
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return true
	default:
		return false
	}
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	PackageID      string
	Username       string
	Password       string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	Settings       map[string]string
	HTTPClient     *http.Client
	Logger         *slog.Logger

	// OnPoll is invoked before every pathway status request.
	OnPoll func()
}

// PredictRequest describes a pathway prediction to submit.
type PredictRequest struct {
	Smiles      string
	Setting     string
	Name        string
	Description string
}

// Client is a session against one enviPath instance. It is safe for
// concurrent use once logged in.
type Client struct {
	baseURL      string
	packageURL   string
	username     string
	password     string
	pollInterval time.Duration
	pollTimeout  time.Duration
	settings     map[string]string
	http         *http.Client
	noRedirect   *http.Client
	breaker      *gobreaker.CircuitBreaker
	logger       *slog.Logger
	onPoll       func()
}

// New builds a Client with a cookie-backed session.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("envipath base URL is required")
	}
	if opts.PackageID == "" {
		return nil, errors.New("envipath package is required")
	}
	base := opts.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: opts.RequestTimeout}
	}
	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := opts.Settings
	if settings == nil {
		settings = DefaultSettings
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	onPoll := opts.OnPoll
	if onPoll == nil {
		onPoll = func() {}
	}

	c := &Client{
		baseURL:      base,
		username:     opts.Username,
		password:     opts.Password,
		pollInterval: pollInterval,
		pollTimeout:  opts.PollTimeout,
		settings:     settings,
		http:         httpClient,
		noRedirect:   &noRedirect,
		logger:       logger,
		onPoll:       onPoll,
	}
	c.packageURL = c.resourceURL("package", opts.PackageID)
	c.breaker = newBreaker(logger)
	return c, nil
}

func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "envipath",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < http.StatusInternalServerError
			}
			return false
		},
	})
}

// Login opens an authenticated session. Without credentials it does nothing
// and predictions run anonymously.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" {
		return nil
	}
	form := url.Values{
		"hiddenMethod":  {"login"},
		"loginusername": {c.username},
		"loginpassword": {c.password},
	}
	resp, err := c.postForm(ctx, c.http, c.baseURL, form)
	if err != nil {
		return fmt.Errorf("envipath login: %w", err)
	}
	drain(resp)
	return nil
}

// Predict submits a prediction and returns the URL of the new pathway.
func (c *Client) Predict(ctx context.Context, req PredictRequest) (string, error) {
	form := url.Values{"smilesinput": {req.Smiles}}
	if req.Name != "" {
		form.Set("name", req.Name)
	}
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	if req.Setting != "" {
		settingURL, err := c.SettingURL(req.Setting)
		if err != nil {
			return "", err
		}
		form.Set("selectedSetting", settingURL)
	}

	resp, err := c.postForm(ctx, c.noRedirect, c.packageURL+"/pathway", form)
	if err != nil {
		return "", fmt.Errorf("submit prediction: %w", err)
	}
	defer drain(resp)

	location := resp.Header.Get("Location")
	if location == "" {
		return "", ErrNoLocation
	}
	resolved, err := resp.Request.URL.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse pathway location %q: %w", location, err)
	}
	return resolved.String(), nil
}

// FetchPathway retrieves the current state of a pathway.
func (c *Client) FetchPathway(ctx context.Context, pathwayURL string) (domain.PathwayDocument, error) {
	var doc domain.PathwayDocument
	if err := c.getJSON(ctx, pathwayURL, &doc); err != nil {
		return domain.PathwayDocument{}, fmt.Errorf("fetch pathway: %w", err)
	}
	return doc, nil
}

// WaitForPathway polls a pathway at a fixed interval until it is no longer
// running, then returns it. A failed prediction is returned as a document
// with Completed set to "error".
func (c *Client) WaitForPathway(ctx context.Context, pathwayURL string) (domain.PathwayDocument, error) {
	pollCtx := ctx
	if c.pollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, c.pollTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		c.onPoll()
		doc, err := c.FetchPathway(pollCtx, pathwayURL)
		if err != nil {
			return domain.PathwayDocument{}, c.pollError(ctx, pollCtx, err)
		}
		if doc.Completed != domain.CompletedFalse {
			c.logger.Debug("pathway finished", "pathway", pathwayURL, "completed", doc.Completed, "polls", attempt)
			return doc, nil
		}

		c.logger.Debug("pathway still running", "pathway", pathwayURL, "poll", attempt)
		select {
		case <-pollCtx.Done():
			return domain.PathwayDocument{}, c.pollError(ctx, pollCtx, pollCtx.Err())
		case <-ticker.C:
		}
	}
}

// pollError distinguishes the poll budget running out from the caller's
// context ending.
func (c *Client) pollError(parent, pollCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrPollTimeout, c.pollTimeout)
	}
	return err
}

// ReactionRules returns the names of the rules attached to a reaction, in
// the order the service lists them.
func (c *Client) ReactionRules(ctx context.Context, reactionURL string) ([]string, error) {
	var reaction domain.ReactionDocument
	if err := c.getJSON(ctx, reactionURL, &reaction); err != nil {
		return nil, fmt.Errorf("fetch reaction: %w", err)
	}
	names := make([]string, 0, len(reaction.Rules))
	for _, rule := range reaction.Rules {
		names = append(names, rule.Name)
	}
	return names, nil
}

func (c *Client) getJSON(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(c.http, req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, client *http.Client, target string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(client, req)
}

// do runs the request through the circuit breaker and turns error statuses
// into *StatusError. The caller closes the returned body.
func (c *Client) do(client *http.Client, req *http.Request) (*http.Response, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			drain(resp)
			return nil, &StatusError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*http.Response), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
