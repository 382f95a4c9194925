// Package archive uploads fresh plate solutions to S3.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/dustin/go-humanize"

	"github.com/colibri-telescope/astrocorr/internal/solver"
)

const (
	contentType = "application/fits"

	DefaultTimeout = 30 * time.Second
)

var ErrNoBucket = errors.New("archive: bucket not configured")

type Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // S3 compatible endpoint, path-style addressing

	Timeout solver.Duration `yaml:"timeout"` // bounds each upload, retries included
}

func DefaultConfig() Config {
	return Config{Timeout: solver.NewDuration(DefaultTimeout)}
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}

func (c Config) Validate() error {
	if err := c.Timeout.Validate(); err != nil {
		return fmt.Errorf("archive: timeout: %w", err)
	}
	return nil
}

// Key is the object key of a frame's solution
func (c Config) Key(frameID string) string {
	return path.Join(c.Prefix, frameID+".wcs")
}

// NewS3 builds an S3 client for the configured region and endpoint
func NewS3(c Config) (s3iface.S3API, error) {
	cfg := &aws.Config{Region: aws.String(c.Region)}
	if c.Endpoint != "" {
		cfg.Endpoint = aws.String(c.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return s3.New(sess), nil
}

func WithLogger(logger *slog.Logger) func(*Archive) {
	return func(a *Archive) {
		a.logger = logger.With("component", "archive")
	}
}

type Archive struct {
	config Config
	s3Api  s3iface.S3API
	logger *slog.Logger
}

func New(config Config, s3Api s3iface.S3API, opts ...func(*Archive)) (*Archive, error) {
	if !config.Enabled() {
		return nil, ErrNoBucket
	}

	if config.Timeout == 0 {
		config.Timeout = solver.NewDuration(DefaultTimeout)
	}

	a := &Archive{
		config: config,
		s3Api:  s3Api,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Upload stores the raw solution of frameID and returns its object key
func (a *Archive) Upload(ctx context.Context, frameID string, wcs []byte) (string, error) {
	key := a.config.Key(frameID)

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout.Std())
	defer cancel()

	_, err := a.s3Api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(wcs),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", a.config.Bucket, key, err)
	}

	a.logger.Info("solution archived",
		"bucket", a.config.Bucket,
		"key", key,
		"size", humanize.Bytes(uint64(len(wcs))))

	return key, nil
}
