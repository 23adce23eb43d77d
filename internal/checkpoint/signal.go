// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package checkpoint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/stagehand/internal/errors"
)

// AppSignaler is the contract with the application layer around a restore:
// it is quiesced before the database is replaced, told it may resume after,
// and then asked whether it is healthy.
type AppSignaler interface {
	Quiesce(ctx context.Context) error
	Resume(ctx context.Context) error
	Healthy(ctx context.Context) error
}

// NoopSignaler is used when the application exposes no control endpoints.
// The operator is told what to do by hand instead.
type NoopSignaler struct {
	Logger hclog.Logger
}

var _ AppSignaler = (*NoopSignaler)(nil)

func (s *NoopSignaler) logger() hclog.Logger {
	if s.Logger == nil {
		return hclog.NewNullLogger()
	}
	return s.Logger
}

func (s *NoopSignaler) Quiesce(context.Context) error {
	s.logger().Warn("no application quiesce endpoint configured, stop application traffic before the restore continues")
	return nil
}

func (s *NoopSignaler) Resume(context.Context) error {
	s.logger().Warn("no application resume endpoint configured, restart the application now")
	return nil
}

func (s *NoopSignaler) Healthy(context.Context) error {
	s.logger().Warn("no application health endpoint configured, check application health by hand")
	return nil
}

// HTTPSignaler drives the application through HTTP endpoints. Quiesce and
// resume are POSTs, health is a GET; any 2xx response is success. An empty
// URL skips that step.
type HTTPSignaler struct {
	client     *retryablehttp.Client
	healthUrl  string
	quiesceUrl string
	resumeUrl  string
	logger     hclog.Logger
}

var _ AppSignaler = (*HTTPSignaler)(nil)

// NewHTTPSignaler validates the endpoints and returns an HTTPSignaler.
// Supported options are WithLogger and WithRetryMax.
func NewHTTPSignaler(ctx context.Context, healthUrl, quiesceUrl, resumeUrl string, opt ...Option) (*HTTPSignaler, error) {
	const op = "checkpoint.NewHTTPSignaler"
	for _, u := range []string{healthUrl, quiesceUrl, resumeUrl} {
		if u == "" {
			continue
		}
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, errors.New(ctx, errors.InvalidConfiguration, op, fmt.Sprintf("invalid application url %q", u))
		}
	}
	opts := getOpts(opt...)
	c := &retryablehttp.Client{
		HTTPClient:   cleanhttp.DefaultClient(),
		RetryWaitMin: 250 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		RetryMax:     opts.withRetryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	c.HTTPClient.Timeout = 30 * time.Second
	return &HTTPSignaler{
		client:     c,
		healthUrl:  healthUrl,
		quiesceUrl: quiesceUrl,
		resumeUrl:  resumeUrl,
		logger:     opts.withLogger,
	}, nil
}

func (s *HTTPSignaler) Quiesce(ctx context.Context) error {
	const op = "checkpoint.(HTTPSignaler).Quiesce"
	if err := s.call(ctx, http.MethodPost, s.quiesceUrl); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

func (s *HTTPSignaler) Resume(ctx context.Context) error {
	const op = "checkpoint.(HTTPSignaler).Resume"
	if err := s.call(ctx, http.MethodPost, s.resumeUrl); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

func (s *HTTPSignaler) Healthy(ctx context.Context) error {
	const op = "checkpoint.(HTTPSignaler).Healthy"
	if err := s.call(ctx, http.MethodGet, s.healthUrl); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

func (s *HTTPSignaler) call(ctx context.Context, method, u string) error {
	const op = "checkpoint.(HTTPSignaler).call"
	if u == "" {
		s.logger.Warn("application endpoint not configured, skipping", "method", method)
		return nil
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.AppSignalFailed))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.AppSignalFailed), errors.WithMsg("%s %s", method, u))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(ctx, errors.AppSignalFailed, op, fmt.Sprintf("%s %s returned %d", method, u, resp.StatusCode))
	}
	s.logger.Debug("application signaled", "method", method, "url", u, "status", resp.StatusCode)
	return nil
}
