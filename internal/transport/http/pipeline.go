package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/observability"
)

// Logger is the logging contract the pipeline needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialSource exposes the held bearer credential.
type CredentialSource interface {
	Credential() string
}

// Refresher renews the credential and returns the new one.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) (string, error)

func (f RefreshFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// Terminator ends the session: best-effort remote logout, then local clear.
type Terminator interface {
	Terminate(ctx context.Context)
}

// Options configures a Pipeline.
type Options struct {
	Client     *resty.Client
	Session    CredentialSource
	Refresher  Refresher
	Terminator Terminator
	Navigator  Navigator
	LoginPath  string
	Logger     Logger

	// RefreshSkew enables refreshing before send when the credential expires
	// within the window. ExpiresAt must be set for it to apply.
	RefreshSkew time.Duration
	ExpiresAt   func(credential string) (time.Time, bool)
	Now         func() time.Time
}

// Pipeline sends authenticated requests and recovers once from an expired credential.
type Pipeline struct {
	client     *resty.Client
	session    CredentialSource
	refresher  Refresher
	terminator Terminator
	navigator  Navigator
	loginPath  string
	logger     Logger
	skew       time.Duration
	expiresAt  func(string) (time.Time, bool)
	now        func() time.Time
}

// NewPipeline validates options and builds a Pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Client == nil {
		return nil, errors.New(errors.KindBootstrap, "http.pipeline", "client is required")
	}
	if opts.Session == nil || opts.Refresher == nil || opts.Terminator == nil {
		return nil, errors.New(errors.KindBootstrap, "http.pipeline", "session, refresher and terminator are required")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindBootstrap, "http.pipeline", "logger is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Pipeline{
		client:     opts.Client,
		session:    opts.Session,
		refresher:  opts.Refresher,
		terminator: opts.Terminator,
		navigator:  opts.Navigator,
		loginPath:  loginPath,
		logger:     opts.Logger,
		skew:       opts.RefreshSkew,
		expiresAt:  opts.ExpiresAt,
		now:        now,
	}, nil
}

// Execute sends req with the held credential. A 401 triggers one refresh and
// one retry whose response is returned as is. If the refresh fails the session
// is terminated and a refresh_failed error is returned.
func (p *Pipeline) Execute(ctx context.Context, req Request) (resp *Response, err error) {
	ctx, end := observability.StartSpan(ctx, "http.client", req.Method+" "+req.Path)
	defer func() { end(err) }()

	credential := p.session.Credential()
	if p.expiringSoon(credential) {
		if fresh, rerr := p.refresher.Refresh(ctx); rerr == nil {
			credential = fresh
		} else {
			p.logger.Debug("proactive refresh failed, sending with held credential: %v", rerr)
		}
	}

	first, err := p.send(ctx, req, credential)
	if err != nil {
		return nil, err
	}
	if !first.Unauthorized() {
		return first, nil
	}

	p.logger.Debug("%s %s unauthorized, refreshing credential", req.Method, req.Path)
	fresh, err := p.refresher.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.KindTransport, "http.execute", "request abandoned", ctx.Err())
		}
		p.teardown(ctx)
		return nil, errors.Reclassify(errors.KindRefreshFailed, "http.execute", "session could not be renewed", err)
	}

	retry, err := p.send(ctx, req, fresh)
	if err != nil {
		return nil, err
	}
	retry.Retried = true
	return retry, nil
}

func (p *Pipeline) teardown(ctx context.Context) {
	p.logger.Warn("refresh failed, ending session")
	p.terminator.Terminate(context.WithoutCancel(ctx))
	if p.navigator != nil && p.navigator.Current() != p.loginPath {
		p.navigator.Navigate(p.loginPath)
	}
}

func (p *Pipeline) expiringSoon(credential string) bool {
	if credential == "" || p.skew <= 0 || p.expiresAt == nil {
		return false
	}
	exp, ok := p.expiresAt(credential)
	if !ok || exp.IsZero() {
		return false
	}
	return !p.now().Add(p.skew).Before(exp)
}

func (p *Pipeline) send(ctx context.Context, req Request, credential string) (*Response, error) {
	r := p.client.R().SetContext(ctx)
	for k, v := range req.Header {
		if req.Multipart != nil && strings.EqualFold(k, "Content-Type") {
			continue
		}
		r.SetHeader(k, v)
	}
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if credential != "" {
		r.SetAuthToken(credential)
	}

	switch {
	case req.Multipart != nil:
		if len(req.Multipart.Fields) > 0 {
			r.SetMultipartFormData(req.Multipart.Fields)
		}
		for _, f := range req.Multipart.Files {
			r.SetMultipartField(f.Field, f.FileName, f.ContentType, bytes.NewReader(f.Content))
		}
	case req.JSON != nil:
		r.SetHeader("Content-Type", "application/json").SetBody(req.JSON)
	case req.Body != nil:
		r.SetBody(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	raw, err := r.Execute(method, req.Path)
	duration := time.Since(start)
	if err != nil {
		p.logger.Warn("%s %s failed (%s): %v", method, req.Path, duration, err)
		return nil, errors.Wrap(errors.KindTransport, "http.send", fmt.Sprintf("%s %s", method, req.Path), err)
	}

	p.logger.Debug("%s %s -> %d (%s)", method, req.Path, raw.StatusCode(), duration)
	endpoint := observability.Label("endpoint", method+" "+req.Path)
	observability.RecordMetric(ctx, "http.client.requests", 1, endpoint,
		observability.Label("status", strconv.Itoa(raw.StatusCode())))
	observability.RecordMetric(ctx, "http.client.duration_ms", float64(duration.Milliseconds()), endpoint)

	return &Response{
		Status: raw.StatusCode(),
		Header: raw.Header(),
		Body:   raw.Body(),
	}, nil
}
