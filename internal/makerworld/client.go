// client.go contains the logic for retrieving makerworld pages with a user
// supplied session, it does not look into the pages beyond detecting failures.

package makerworld

import (
	"context"
	"errors"
	"fmt"
	"makerworld-stats/internal/assert"
	"makerworld-stats/internal/chrono"
	"makerworld-stats/internal/snapshot"
	"makerworld-stats/internal/telemetry"
	"makerworld-stats/lib/restyutil"
	"makerworld-stats/lib/textutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_fetch_profile = "client.fetch-profile"
	report_client_fetch_upload  = "client.fetch-upload"
	report_client_fetch_model   = "client.fetch-model"
	report_client_candidate     = "client.candidate"
)

const DefaultBaseURL = "https://makerworld.com"

// DefaultUserAgent is sent when the account does not configure one.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Credentials are replayed verbatim on every request.
type Credentials struct {
	Username  string
	Cookie    string
	UserAgent string
}

type Page struct {
	URL    string
	Status int
	Body   []byte
}

type Options struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Timeout of a single attempt, defaults to 20 seconds.
	Timeout time.Duration
	// Attempts is the total number of tries for retryable failures, defaults to 3.
	Attempts     int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	// RequestsPerSecond defaults to 2 with a burst of 2.
	RequestsPerSecond float64
	// DumpDir, when set, receives a redacted copy of every http exchange.
	DumpDir string
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.RetryWait <= 0 {
		o.RetryWait = time.Second
	}
	if o.RetryMaxWait <= 0 {
		o.RetryMaxWait = 8 * time.Second
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 2
	}
	return o
}

type Client struct {
	http *resty.Client
	base *url.URL
	time chrono.TimeAPI
	tel  telemetry.API
}

func NewClient(opts Options, timeAPI chrono.TimeAPI, tel telemetry.API) (*Client, error) {
	assert.NotNil(timeAPI, "time api")
	assert.NotNil(tel, "telemetry api")

	tel = telemetry.NewScopedAPI("makerworld", tel)
	opts = opts.withDefaults()

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimSuffix(base.String(), "/"))
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.RedirectPolicyFunc(stopAtLogin),
	)

	httpClient.SetRetryCount(opts.Attempts - 1)
	httpClient.SetRetryWaitTime(opts.RetryWait)
	httpClient.SetRetryMaxWaitTime(opts.RetryMaxWait)
	// conditions replace resty's default of retrying on every error
	httpClient.AddRetryCondition(shouldRetry)

	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	var output restyutil.InstrumentOutput
	if opts.DumpDir != "" {
		fsOutput, err := restyutil.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, err
		}
		output = fsOutput
	}
	telemetry.InstrumentResty(httpClient, tel, output)

	return &Client{
		http: httpClient,
		base: base,
		time: timeAPI,
		tel:  tel,
	}, nil
}

var loginPathMarkers = []string{"/login", "/signin", "/sign-in", "/sign_in", "/sign-up"}

func isLoginPath(path string) bool {
	return textutil.ContainsAny(path, loginPathMarkers)
}

// stopAtLogin keeps the redirect response instead of following it into a
// login form so it can be reported as an authentication failure.
func stopAtLogin(req *http.Request, _ []*http.Request) error {
	if isLoginPath(req.URL.Path) {
		return http.ErrUseLastResponse
	}
	return nil
}

func shouldRetry(res *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if res == nil {
		return false
	}
	return res.StatusCode() >= 500
}

func cookieFingerprint(cookie string) string {
	if cookie == "" {
		return "empty"
	}
	return fmt.Sprintf("len=%d", len(cookie))
}

func validate(creds Credentials) error {
	if strings.TrimSpace(creds.Username) == "" {
		return &AuthError{Reason: "no username configured"}
	}
	if strings.TrimSpace(creds.Cookie) == "" {
		return &AuthError{Reason: "no session cookie configured"}
	}
	return nil
}

func (c *Client) FetchProfilePage(ctx context.Context, creds Credentials) (Page, error) {
	if err := validate(creds); err != nil {
		return Page{}, err
	}
	user := url.PathEscape(creds.Username)
	page, err := c.fetchCandidates(ctx, creds, []string{
		fmt.Sprintf("/en/@%s", user),
		fmt.Sprintf("/@%s", user),
	})
	if err != nil {
		c.tel.ReportWarning(report_client_fetch_profile, err)
		return Page{}, err
	}
	return page, nil
}

func (c *Client) FetchUploadPage(ctx context.Context, creds Credentials) (Page, error) {
	if err := validate(creds); err != nil {
		return Page{}, err
	}
	user := url.PathEscape(creds.Username)
	page, err := c.fetchCandidates(ctx, creds, []string{
		fmt.Sprintf("/en/@%s/upload", user),
		fmt.Sprintf("/@%s/upload", user),
	})
	if err != nil {
		c.tel.ReportWarning(report_client_fetch_upload, err)
		return Page{}, err
	}
	return page, nil
}

func (c *Client) FetchModelPage(ctx context.Context, creds Credentials, ref snapshot.ModelRef) (Page, error) {
	if err := validate(creds); err != nil {
		return Page{}, err
	}
	page, err := c.fetchCandidates(ctx, creds, []string{snapshot.ModelPath(ref.ID, ref.Slug)})
	if err != nil {
		c.tel.ReportDebug(report_client_fetch_model, ref.ID, err)
		return Page{}, err
	}
	return page, nil
}

// fetchCandidates tries each path in order, a 403 or 404 moves on to the
// next path while any other failure ends the search.
func (c *Client) fetchCandidates(ctx context.Context, creds Credentials, paths []string) (Page, error) {
	var forbidden *AuthError
	var notFound *NetworkError

	for _, path := range paths {
		page, err := c.fetch(ctx, creds, path)
		if err == nil {
			return page, nil
		}

		var authErr *AuthError
		var netErr *NetworkError
		switch {
		case errors.As(err, &authErr) && authErr.Status == http.StatusForbidden:
			forbidden = authErr
		case errors.As(err, &netErr) && netErr.Status == http.StatusNotFound:
			notFound = netErr
		default:
			return Page{}, err
		}
		c.tel.ReportDebug(report_client_candidate, "falling through", path, err)
	}

	if forbidden != nil {
		forbidden.Reason = "forbidden on every known url, the session cookie is likely expired or missing permissions"
		return Page{}, forbidden
	}
	return Page{}, notFound
}

var challengeMarkers = []string{
	"just a moment...",
	"cf-chl",
	"challenge-platform",
	"attention required! | cloudflare",
}

var rateLimitMarkers = []string{
	"too many requests",
	"rate limit",
	"ratelimit",
}

func (c *Client) fetch(ctx context.Context, creds Credentials, path string) (Page, error) {
	userAgent := creds.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	c.tel.ReportDebug(report_client_candidate, path, telemetry.KV{Key: "cookie", Value: cookieFingerprint(creds.Cookie)})

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cookie", creds.Cookie).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		Get(path)
	fullUrl := c.base.JoinPath(path).String()
	if err != nil {
		attempts := 1
		if res != nil && res.Request != nil {
			attempts = res.Request.Attempt
		}
		return Page{}, &NetworkError{URL: fullUrl, Attempts: attempts, Err: err}
	}
	return c.classify(fullUrl, res)
}

func (c *Client) classify(fullUrl string, res *resty.Response) (Page, error) {
	status := res.StatusCode()
	body := res.Body()

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Page{}, &AuthError{URL: fullUrl, Status: status, Reason: textutil.Snippet(string(body), 120)}
	case status == http.StatusTooManyRequests:
		return Page{}, &RateLimitError{
			URL:        fullUrl,
			RetryAfter: ParseRetryAfter(res.Header().Get("Retry-After"), c.time.Now()),
		}
	case status >= 300 && status < 400:
		location := res.Header().Get("Location")
		if isLoginPath(location) {
			return Page{}, &AuthError{URL: fullUrl, Status: status, Reason: "redirected to login"}
		}
		return Page{}, &NetworkError{URL: fullUrl, Status: status, Attempts: res.Request.Attempt, Err: fmt.Errorf("unexpected redirect to %q", location)}
	case status >= 400:
		if textutil.ContainsAny(string(body), rateLimitMarkers) {
			return Page{}, &RateLimitError{
				URL:        fullUrl,
				RetryAfter: ParseRetryAfter(res.Header().Get("Retry-After"), c.time.Now()),
			}
		}
		return Page{}, &NetworkError{URL: fullUrl, Status: status, Attempts: res.Request.Attempt}
	}

	finalUrl := fullUrl
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
		if isLoginPath(res.RawResponse.Request.URL.Path) {
			return Page{}, &AuthError{URL: finalUrl, Status: status, Reason: "redirected to login"}
		}
	}

	text := string(body)
	if !strings.Contains(text, "__NEXT_DATA__") && textutil.ContainsAny(text, challengeMarkers) {
		return Page{}, &AuthError{URL: finalUrl, Status: status, Reason: "received a bot challenge instead of the page"}
	}

	return Page{
		URL:    finalUrl,
		Status: status,
		Body:   body,
	}, nil
}

// ParseRetryAfter reads a Retry-After header given either in seconds or as
// an http date. Missing or unparseable values yield 0.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	wait := at.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
