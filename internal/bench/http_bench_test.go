package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/internal/ingest"
	"github.com/osvaldoandrade/elqbulk/pkg/app"
	"github.com/osvaldoandrade/elqbulk/pkg/auth"
	"github.com/osvaldoandrade/elqbulk/pkg/config"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

const benchToken = "bench-token"

func newBenchApp(b *testing.B, endpoint string) *app.Application {
	b.Helper()
	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		b.Fatalf("config: %v", err)
	}
	cfg.Env = "dev"
	cfg.LogLevel = "error"
	cfg.RedisAddr = ""
	cfg.Persistence.Type = "memory"
	cfg.LocalArtifactsDir = b.TempDir()
	cfg.EndpointTemplate = endpoint + "/s{siteId}/e/f2"
	cfg.MaxActiveJobs = 1 << 16
	cfg.Auth = auth.ProviderConfig{Type: "static", Config: map[string]any{"token": benchToken}}
	// Benchmarks keep rate limiting disabled.
	cfg.RateLimit = config.RateLimitConfig{}

	a, err := app.NewApplication(cfg)
	if err != nil {
		b.Fatalf("app init: %v", err)
	}
	app.SetupMappings(a)
	b.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func newFormServer(b *testing.B) *httptest.Server {
	b.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	b.Cleanup(srv.Close)
	return srv
}

func benchCSV(rows int) string {
	var sb strings.Builder
	sb.WriteString("email,firstName,lastName,company\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "user%d@example.com,First%d,Last%d,Company %d\n", i, i, i, i%17)
	}
	return sb.String()
}

func doJSONRequest(b *testing.B, h http.Handler, method, path, bearerToken string, body []byte) (int, []byte) {
	b.Helper()

	var rbody *bytes.Reader
	if body == nil {
		rbody = bytes.NewReader([]byte{})
	} else {
		rbody = bytes.NewReader(body)
	}

	req := httptest.NewRequest(method, path, rbody)
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func BenchmarkHTTP_Validate(b *testing.B) {
	a := newBenchApp(b, newFormServer(b).URL)
	body, _ := json.Marshal(map[string]any{"siteId": "100", "formName": "Bench", "csv": benchCSV(500)})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		status, resp := doJSONRequest(b, a.Engine, http.MethodPost, "/v1/elqbulk/validate", benchToken, body)
		if status != http.StatusOK {
			b.Fatalf("validate status %d body=%s", status, string(resp))
		}
	}
}

func BenchmarkHTTP_CreateGetJob(b *testing.B) {
	a := newBenchApp(b, newFormServer(b).URL)
	body, _ := json.Marshal(map[string]any{
		"operation": "validate",
		"siteId":    "100",
		"formName":  "Bench",
		"csv":       benchCSV(20),
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		status, resp := doJSONRequest(b, a.Engine, http.MethodPost, "/v1/elqbulk/jobs", benchToken, body)
		if status != http.StatusAccepted {
			b.Fatalf("create status %d body=%s", status, string(resp))
		}
		var created domain.Job
		if err := json.Unmarshal(resp, &created); err != nil || created.ID == "" {
			b.Fatalf("create parse failed: err=%v body=%s", err, string(resp))
		}
		status, resp = doJSONRequest(b, a.Engine, http.MethodGet, "/v1/elqbulk/jobs/"+created.ID, benchToken, nil)
		if status != http.StatusOK {
			b.Fatalf("get status %d body=%s", status, string(resp))
		}
	}
}

func BenchmarkBulk_Run(b *testing.B) {
	a := newBenchApp(b, newFormServer(b).URL)
	rows, err := ingest.Parse(benchCSV(100))
	if err != nil {
		b.Fatalf("parse: %v", err)
	}
	submitOp, err := a.Operations.Lookup(domain.OpSubmit)
	if err != nil {
		b.Fatalf("lookup: %v", err)
	}
	opts := domain.SubmissionOptions{RequestTimeoutSeconds: 5, MaxConcurrentRequests: 20}
	target := domain.SubmissionTarget{SiteID: "100", FormName: "Bench"}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, err := submitOp(ctx, rows, target, opts, nil)
		if err != nil {
			b.Fatalf("run: %v", err)
		}
		if out.Summary.SuccessfulRequests != len(rows) {
			b.Fatalf("successful = %d", out.Summary.SuccessfulRequests)
		}
	}
}
