package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/generation"
	"github.com/yungbote/atelier-backend/internal/observability"
	"github.com/yungbote/atelier-backend/internal/platform/envutil"
	"github.com/yungbote/atelier-backend/internal/platform/httpx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

// Client reads prediction state from the generation provider and fetches its outputs.
type Client interface {
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
	// Download fetches an output URL with a hard timeout and size cap.
	Download(ctx context.Context, rawURL string) (*Download, error)
}

type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Input  PredictionInput `json:"input"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  any             `json:"error,omitempty"`
}

type PredictionInput struct {
	Prompt string `json:"prompt,omitempty"`
	Image  string `json:"image,omitempty"`
}

// JobStatus maps the provider status onto the local job status; unknown values
// are reported as processing so callers keep polling.
func (p *Prediction) JobStatus() generation.JobStatus {
	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "starting":
		return generation.JobStatusStarting
	case "succeeded":
		return generation.JobStatusSucceeded
	case "failed":
		return generation.JobStatusFailed
	case "canceled", "cancelled", "aborted":
		return generation.JobStatusCanceled
	default:
		return generation.JobStatusProcessing
	}
}

// FirstOutput returns the first output URL. The provider sends either a single
// string or a list of strings.
func (p *Prediction) FirstOutput() string {
	if len(p.Output) == 0 {
		return ""
	}
	var one string
	if err := json.Unmarshal(p.Output, &one); err == nil {
		return strings.TrimSpace(one)
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil {
		for _, s := range many {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// ErrorMessage flattens the provider's error field.
func (p *Prediction) ErrorMessage() string {
	switch v := p.Error.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		raw, _ := json.Marshal(v)
		return string(raw)
	}
}

type Download struct {
	Data        []byte
	ContentType string
}

type Config struct {
	BaseURL         string
	APIToken        string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	DownloadMax     int64
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:         envutil.String("IMAGEGEN_BASE_URL", "https://api.replicate.com"),
		APIToken:        envutil.String("IMAGEGEN_API_TOKEN", ""),
		Timeout:         envutil.Seconds("IMAGEGEN_TIMEOUT_SECONDS", 15*time.Second),
		DownloadTimeout: envutil.Seconds("DOWNLOAD_TIMEOUT_SECONDS", 30*time.Second),
		DownloadMax:     envutil.Int64("DOWNLOAD_MAX_BYTES", 25<<20),
	}
}

type client struct {
	log          *logger.Logger
	baseURL      string
	token        string
	apiClient    *http.Client
	downloadHTTP *http.Client
	downloadMax  int64
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, fmt.Errorf("missing IMAGEGEN_API_TOKEN")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("invalid IMAGEGEN_BASE_URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	if cfg.DownloadMax <= 0 {
		cfg.DownloadMax = 25 << 20
	}
	return &client{
		log:          log.With("client", "ImageGen"),
		baseURL:      base,
		token:        cfg.APIToken,
		apiClient:    &http.Client{Timeout: cfg.Timeout},
		downloadHTTP: &http.Client{Timeout: cfg.DownloadTimeout},
		downloadMax:  cfg.DownloadMax,
	}, nil
}

func (c *client) GetPrediction(ctx context.Context, id string) (p *Prediction, err error) {
	const op = "imagegen.get_prediction"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "prediction id is required", nil)
	}
	ctx, span := observability.StartClientSpan(ctx, "imagegen", op, attribute.String("prediction.id", id))
	start := time.Now()
	status := "error"
	defer func() { c.finish(span, op, status, start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/predictions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.apiClient.Do(req)
	if err != nil {
		status = "unreachable"
		c.log.Warn("generation provider unreachable", "prediction_id", id, "error", err)
		return nil, domainagg.NewError(domainagg.CodeGatewayUnreachable, op, "generation provider unreachable", err)
	}
	raw, readErr := httpx.ReadLimited(resp.Body, 1<<20)
	_ = resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)
	if readErr != nil {
		return nil, domainagg.NewError(domainagg.CodeGatewayUnreachable, op, "read provider response", readErr)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, "prediction not found", nil)
	case httpx.IsRetryableHTTPStatus(resp.StatusCode):
		return nil, domainagg.NewError(domainagg.CodeGatewayUnreachable, op, "generation provider unavailable",
			&httpx.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)})
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, domainagg.NewError(domainagg.CodeGatewayRejected, op, "generation provider rejected request",
			&httpx.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)})
	}
	var out Prediction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domainagg.NewError(domainagg.CodeGatewayRejected, op, "undecodable provider response", err)
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

func (c *client) Download(ctx context.Context, rawURL string) (d *Download, err error) {
	const op = "imagegen.download"
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, domainagg.NewError(domainagg.CodeDownloadFailed, op, "invalid output url", err)
	}
	ctx, span := observability.StartClientSpan(ctx, "imagegen", op, attribute.String("server.address", u.Host))
	start := time.Now()
	status := "error"
	defer func() { c.finish(span, op, status, start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeDownloadFailed, op, "build request", err)
	}
	resp, err := c.downloadHTTP.Do(req)
	if err != nil {
		status = "unreachable"
		return nil, domainagg.NewError(domainagg.CodeDownloadFailed, op, "output download failed", err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domainagg.NewError(domainagg.CodeDownloadFailed, op, "output download failed",
			&httpx.StatusError{StatusCode: resp.StatusCode})
	}
	if resp.ContentLength > c.downloadMax {
		return nil, domainagg.NewError(domainagg.CodeDownloadFailed, op,
			fmt.Sprintf("output is %d bytes, limit %d", resp.ContentLength, c.downloadMax), nil)
	}
	data, err := httpx.ReadLimited(resp.Body, c.downloadMax)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeDownloadFailed, op, "read output", err)
	}
	ct := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return &Download{Data: data, ContentType: ct}, nil
}

func (c *client) finish(span trace.Span, op, status string, start time.Time, err error) {
	span.SetAttributes(attribute.String("outcome", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domainagg.CodeOf(err)))
	}
	span.End()
	observability.Current().ObserveExternalCall("imagegen", op, status, time.Since(start))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
