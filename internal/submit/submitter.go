package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/elqbulk/internal/metrics"
	"github.com/osvaldoandrade/elqbulk/internal/tracing"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

const (
	DefaultEndpointTemplate = "https://s{siteId}.t.eloqua.com/e/f2"
	DefaultUserAgent        = "elqbulk/1.0"

	ParamFormName = "elqFormName"
	ParamSiteID   = "elqSiteID"
)

// Doer is the subset of *http.Client used for submissions.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	// EndpointTemplate must contain the {siteId} placeholder.
	EndpointTemplate string
	UserAgent        string
}

type Submitter struct {
	client    Doer
	template  string
	userAgent string
	tracer    trace.Tracer
}

// PreparedRequest is the fully encoded form post for one row.
type PreparedRequest struct {
	Endpoint       string
	Body           string
	URL            string
	ParameterCount int
}

func New(client Doer, cfg Config) *Submitter {
	if client == nil {
		client = &http.Client{}
	}
	if strings.TrimSpace(cfg.EndpointTemplate) == "" {
		cfg.EndpointTemplate = DefaultEndpointTemplate
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Submitter{
		client:    client,
		template:  cfg.EndpointTemplate,
		userAgent: cfg.UserAgent,
		tracer:    tracing.Tracer(),
	}
}

func (s *Submitter) Endpoint(siteID string) string {
	return strings.ReplaceAll(s.template, "{siteId}", siteID)
}

// BuildRequest encodes the control parameters followed by the row columns
// in name order. Columns that shadow a control parameter are dropped.
func (s *Submitter) BuildRequest(row domain.Row, target domain.SubmissionTarget) PreparedRequest {
	keys := make([]string, 0, len(row))
	for k := range row {
		if k == ParamFormName || k == ParamSiteID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	writeParam(&b, ParamFormName, target.FormName)
	writeParam(&b, ParamSiteID, target.SiteID)
	for _, k := range keys {
		writeParam(&b, k, row[k])
	}

	endpoint := s.Endpoint(target.SiteID)
	body := b.String()
	return PreparedRequest{
		Endpoint:       endpoint,
		Body:           body,
		URL:            endpoint + "?" + body,
		ParameterCount: len(keys) + 2,
	}
}

func writeParam(b *strings.Builder, key, value string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(url.QueryEscape(key))
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(value))
}

// Submit posts one row and records what happened. It never fails: transport
// errors and timeouts are reported on the outcome. Any completed HTTP
// exchange counts as success whatever the status code. The deferred
// bookkeeping writes ProcessingTimeMs into the named result.
func (s *Submitter) Submit(ctx context.Context, row domain.Row, target domain.SubmissionTarget, timeout time.Duration) (out domain.RowOutcome) {
	prepared := s.BuildRequest(row, target)
	out = domain.RowOutcome{
		URL:            prepared.URL,
		ParameterCount: prepared.ParameterCount,
		Data:           row,
	}

	ctx, span := s.tracer.Start(ctx, "elqbulk.submit_row", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("elqbulk.site_id", target.SiteID),
			attribute.String("elqbulk.form_name", target.FormName),
			attribute.Int("elqbulk.parameter_count", prepared.ParameterCount),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		out.ProcessingTimeMs = elapsed.Milliseconds()
		label := "success"
		if !out.Success {
			label = "failure"
			span.SetStatus(codes.Error, out.Error)
		}
		metrics.RowSubmissionsTotal.WithLabelValues(label).Inc()
		metrics.RowSubmissionLatencySeconds.WithLabelValues(label).Observe(elapsed.Seconds())
	}()

	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultRequestTimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, prepared.Endpoint, strings.NewReader(prepared.Body))
	if err != nil {
		out.Error = fmt.Sprintf("build request: %v", err)
		return out
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		out.Error = describeError(reqCtx, err, timeout)
		return out
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		out.Error = describeError(reqCtx, err, timeout)
		return out
	}

	status := resp.StatusCode
	out.Success = true
	out.StatusCode = &status
	out.ResponseSize = &n
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	return out
}

func describeError(ctx context.Context, err error, timeout time.Duration) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("request timeout after %s", timeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("request timeout after %s", timeout)
	}
	if errors.Is(err, context.Canceled) {
		return "request aborted: job canceled"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("dns lookup failed for %s: %v", dnsErr.Name, dnsErr.Err)
	}
	return fmt.Sprintf("transport error: %v", err)
}
