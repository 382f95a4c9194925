// Package remote solves images through the astrometry.net web API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"github.com/dustin/go-humanize"

	"github.com/colibri-telescope/astrocorr/internal/solver"
	"github.com/colibri-telescope/astrocorr/internal/wcs"
)

const Name = "remote"

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
)

var (
	errRejected = errors.New("request rejected")
	errAuth     = errors.New("authentication failed")
	errNoJob    = errors.New("job failed")
)

// WithLogger sets the logger for the strategy
func WithLogger(logger *slog.Logger) func(s *Strategy) {
	return func(s *Strategy) {
		s.logger = logger.With(slog.String("strategy", Name))
	}
}

// WithHTTPClient replaces the retrying HTTP client
func WithHTTPClient(client *http.Client) func(s *Strategy) {
	return func(s *Strategy) {
		s.client = client
	}
}

// Strategy submits images to astrometry.net and downloads the resulting WCS file
type Strategy struct {
	config       Config
	baseURL      *url.URL
	client       *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// New creates a remote strategy. GET requests are retried on transient
// network errors and gateway statuses.
func New(config Config, options ...func(s *Strategy)) (*Strategy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.APIKey == "" {
		config.APIKey = os.Getenv(APIKeyEnv)
	}

	baseURL, _ := url.Parse(strings.TrimSuffix(config.BaseURL, "/"))

	transport := rehttp.NewTransport(
		http.DefaultTransport,
		rehttp.RetryAll(
			rehttp.RetryMaxRetries(config.MaxRetries),
			rehttp.RetryHTTPMethods(http.MethodGet),
			rehttp.RetryAny(
				rehttp.RetryTemporaryErr(),
				rehttp.RetryStatuses(http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout),
			),
		),
		rehttp.ExpJitterDelay(retryBaseDelay, retryMaxDelay),
	)

	s := Strategy{
		config:       config,
		baseURL:      baseURL,
		client:       &http.Client{Transport: transport, Timeout: config.RequestTimeout.Std()},
		pollInterval: config.PollInterval.Std(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

func (s *Strategy) Name() string {
	return Name
}

// Solve uploads the image with the distortion order and a centre pixel hint,
// waits for the job and returns its WCS file.
func (s *Strategy) Solve(ctx context.Context, req solver.Request) (*wcs.Descriptor, error) {
	if s.config.APIKey == "" {
		return nil, s.fail(solver.KindMisconfigured, fmt.Errorf("no API key configured (set apiKey or %s)", APIKeyEnv))
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout.Std())
	defer cancel()

	data, err := s.solve(ctx, req)
	if err != nil {
		return nil, s.fail(s.classify(ctx, err), err)
	}

	d, err := wcs.ParseDescriptor(data)
	if err != nil {
		return nil, s.fail(solver.KindFailed, err)
	}

	return d, nil
}

func (s *Strategy) solve(ctx context.Context, req solver.Request) ([]byte, error) {
	session, err := s.login(ctx)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	subID, err := s.upload(ctx, session, req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	s.logger.Info("image submitted", slog.Int("submission", subID))

	jobID, err := s.waitJob(ctx, subID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job solved", slog.Int("job", jobID))

	data, err := s.get(ctx, fmt.Sprintf("/wcs_file/%d", jobID))
	if err != nil {
		return nil, fmt.Errorf("downloading solution: %w", err)
	}

	return data, nil
}

type statusResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errormessage"`
}

func (r statusResponse) check() error {
	if r.Status != "success" {
		return fmt.Errorf("%w: %s %s", errRejected, r.Status, r.ErrorMessage)
	}
	return nil
}

func (s *Strategy) login(ctx context.Context) (string, error) {
	payload, _ := json.Marshal(map[string]string{"apikey": s.config.APIKey})
	form := url.Values{"request-json": {string(payload)}}

	body, err := s.do(ctx, http.MethodPost, "/api/login", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}

	var resp struct {
		statusResponse
		Session string `json:"session"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if err := resp.check(); err != nil {
		return "", fmt.Errorf("%w: %w", errAuth, err)
	}

	return resp.Session, nil
}

// uploadRequest mirrors the astrometry.net upload options
type uploadRequest struct {
	Session            string  `json:"session"`
	PubliclyVisible    string  `json:"publicly_visible"`
	AllowModifications string  `json:"allow_modifications"`
	AllowCommercialUse string  `json:"allow_commercial_use"`
	TweakOrder         int     `json:"tweak_order"`
	CRPixCenter        bool    `json:"crpix_center"`
	ScaleUnits         string  `json:"scale_units,omitempty"`
	ScaleType          string  `json:"scale_type,omitempty"`
	ScaleLower         float64 `json:"scale_lower,omitempty"`
	ScaleUpper         float64 `json:"scale_upper,omitempty"`
	ImageWidth         int     `json:"image_width,omitempty"`
	ImageHeight        int     `json:"image_height,omitempty"`
}

func (s *Strategy) upload(ctx context.Context, session string, req solver.Request) (int, error) {
	image, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return 0, err
	}

	options := uploadRequest{
		Session:            session,
		PubliclyVisible:    "n",
		AllowModifications: "n",
		AllowCommercialUse: "n",
		TweakOrder:         req.DistortionOrder,
		CRPixCenter:        true,
		ImageWidth:         req.Width,
		ImageHeight:        req.Height,
	}
	if s.config.ScaleHigh > 0 {
		options.ScaleUnits = "arcsecperpix"
		options.ScaleType = "ul"
		options.ScaleLower = s.config.ScaleLow
		options.ScaleUpper = s.config.ScaleHigh
	}
	payload, err := json.Marshal(options)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("request-json", string(payload)); err != nil {
		return 0, err
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(req.ImagePath))
	if err != nil {
		return 0, err
	}
	if _, err := fw.Write(image); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}

	s.logger.Debug("uploading image",
		slog.String("image", req.ImagePath),
		slog.String("size", humanize.Bytes(uint64(len(image)))),
		slog.Int("tweakOrder", req.DistortionOrder))

	body, err := s.do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return 0, err
	}

	var resp struct {
		statusResponse
		SubID int `json:"subid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	if err := resp.check(); err != nil {
		return 0, err
	}

	return resp.SubID, nil
}

// waitJob polls the submission until it has a job and the job until it finishes
func (s *Strategy) waitJob(ctx context.Context, subID int) (int, error) {
	var jobID int
	for {
		body, err := s.get(ctx, "/api/submissions/"+strconv.Itoa(subID))
		if err != nil {
			return 0, fmt.Errorf("submission status: %w", err)
		}

		var sub struct {
			Jobs []*int `json:"jobs"`
		}
		if err := json.Unmarshal(body, &sub); err != nil {
			return 0, fmt.Errorf("decoding submission status: %w", err)
		}
		if len(sub.Jobs) > 0 && sub.Jobs[0] != nil {
			jobID = *sub.Jobs[0]
			break
		}

		if err := s.sleep(ctx); err != nil {
			return 0, err
		}
	}

	for {
		body, err := s.get(ctx, "/api/jobs/"+strconv.Itoa(jobID))
		if err != nil {
			return 0, fmt.Errorf("job status: %w", err)
		}

		var job statusResponse
		if err := json.Unmarshal(body, &job); err != nil {
			return 0, fmt.Errorf("decoding job status: %w", err)
		}

		switch job.Status {
		case "success":
			return jobID, nil
		case "failure":
			return 0, fmt.Errorf("%w: job %d could not be solved", errNoJob, jobID)
		}

		s.logger.Debug("waiting for job", slog.Int("job", jobID), slog.String("status", job.Status))
		if err := s.sleep(ctx); err != nil {
			return 0, err
		}
	}
}

func (s *Strategy) sleep(ctx context.Context) error {
	t := time.NewTimer(s.pollInterval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Strategy) get(ctx context.Context, path string) ([]byte, error) {
	return s.do(ctx, http.MethodGet, path, "", nil)
}

func (s *Strategy) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL.String()+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, path: path}
	}

	return data, nil
}

type statusError struct {
	code int
	path string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.path, e.code, http.StatusText(e.code))
}

func (s *Strategy) fail(kind solver.Kind, err error) error {
	return solver.NewStrategyError(Name, kind, err)
}

func (s *Strategy) classify(ctx context.Context, err error) solver.Kind {
	var (
		se     *statusError
		netErr net.Error
	)

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return solver.KindTimeout
	case errors.Is(err, errAuth), errors.Is(err, fs.ErrPermission):
		return solver.KindMisconfigured
	case errors.As(err, &se):
		switch {
		case se.code == http.StatusUnauthorized || se.code == http.StatusForbidden:
			return solver.KindMisconfigured
		case se.code >= 500:
			return solver.KindUnavailable
		default:
			return solver.KindFailed
		}
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return solver.KindTimeout
		}
		return solver.KindUnavailable
	default:
		return solver.KindFailed
	}
}
