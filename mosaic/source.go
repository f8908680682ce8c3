package mosaic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

const (
	httpUserAgent = "go-mosaic/1.0"

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// TimeWindow is the temporal compositing window of a request: the
// service composites the best observations between Start and End.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func (w TimeWindow) String() string {
	return w.Start.UTC().Format("20060102") + "-" + w.End.UTC().Format("20060102")
}

// RegionRequest describes one sub-region retrieval: which coverage,
// its geographic bounds, the pixel grid to render it on, the output
// format and coordinate reference system, and the temporal window.
type RegionRequest struct {
	Coverage string
	Bounds   orb.Bound
	Width    int
	Height   int
	Format   string
	CRS      string
	Window   TimeWindow

	// QualityMax, when > 0, asks the service to exclude observations
	// above this quality threshold (e.g. cloud fraction).
	QualityMax float64
}

// ImageSource retrieves raster payloads for sub-regions. Handles are
// constructed once and injected; there is no package-level client.
type ImageSource interface {
	FetchRegion(ctx context.Context, req *RegionRequest) ([]byte, error)
}

// CoverageSource talks to a WCS-style coverage endpoint over HTTP.
type CoverageSource struct {
	client  *http.Client
	baseURL string
	retries int
	logger  *zap.Logger
}

// NewCoverageSource builds an HTTP image source. The timeout bounds
// each individual request attempt; retries bounds how many attempts a
// region gets before its tile is given up on.
func NewCoverageSource(baseURL string, timeout time.Duration, retries int, logger *zap.Logger) *CoverageSource {
	if retries < 1 {
		retries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 64,
		},
	}

	return &CoverageSource{
		client:  client,
		baseURL: baseURL,
		retries: retries,
		logger:  logger,
	}
}

func (s *CoverageSource) FetchRegion(ctx context.Context, req *RegionRequest) ([]byte, error) {
	q := url.Values{}
	q.Set("coverage", req.Coverage)
	q.Set("bbox", fmt.Sprintf("%.9f,%.9f,%.9f,%.9f",
		req.Bounds.Min.X(), req.Bounds.Min.Y(), req.Bounds.Max.X(), req.Bounds.Max.Y()))
	q.Set("width", fmt.Sprintf("%d", req.Width))
	q.Set("height", fmt.Sprintf("%d", req.Height))
	q.Set("format", req.Format)
	q.Set("crs", req.CRS)
	q.Set("time", req.Window.String())
	if req.QualityMax > 0 {
		q.Set("quality", fmt.Sprintf("%g", req.QualityMax))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", httpUserAgent)

	resp, err := s.doWithRetry(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// doWithRetry retries transient failures with exponential backoff
// capped at retryMaxDelay. Server-side errors and transport errors are
// transient; any other non-200 status fails immediately.
func (s *CoverageSource) doWithRetry(ctx context.Context, request *http.Request) (*http.Response, error) {
	sleep := retryBaseDelay

	var lastErr error
	for i := 0; i < s.retries; i++ {
		if i > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			sleep *= 2
			if sleep > retryMaxDelay {
				sleep = retryMaxDelay
			}
		}

		resp, err := s.client.Do(request)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %s for %s", resp.Status, request.URL)

		if resp.StatusCode < 500 || resp.StatusCode >= 600 {
			return nil, lastErr
		}
		s.logger.Debug("retrying region request",
			zap.Int("attempt", i+1),
			zap.String("status", resp.Status))
	}

	return nil, fmt.Errorf("ran out of retries: %w", lastErr)
}
