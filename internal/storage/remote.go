package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/teamnewpipe/crashreportimporter/internal/sentry"
)

const (
	defaultUserAgent   = "NewPipe Crash Report Importer"
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 64 << 10
)

type RemoteOption func(*RemoteSink)

func WithHTTPClient(client *http.Client) RemoteOption {
	return func(s *RemoteSink) {
		s.client = client
	}
}

func WithUserAgent(userAgent string) RemoteOption {
	return func(s *RemoteSink) {
		s.userAgent = strings.TrimSpace(userAgent)
	}
}

// RemoteSink posts events to the store API of one project. It only accepts
// reports of its package.
type RemoteSink struct {
	name      string
	pkg       string
	dsn       *sentry.DSN
	client    *http.Client
	userAgent string
}

func NewRemoteSink(name, dsn, pkg string, opts ...RemoteOption) (*RemoteSink, error) {
	parsed, err := sentry.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "destination %s", name)
	}

	s := &RemoteSink{
		name:      name,
		pkg:       pkg,
		dsn:       parsed,
		client:    &http.Client{Timeout: defaultHTTPTimeout},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RemoteSink) Name() string {
	return s.name
}

func (s *RemoteSink) Package() string {
	return s.pkg
}

func (s *RemoteSink) Endpoint() string {
	return s.dsn.String()
}

// Save builds the event and posts it. A package mismatch is returned before
// any request is made.
func (s *RemoteSink) Save(ctx context.Context, d Delivery) error {
	payload, err := sentry.Build(d.Record, d.Exception, s.pkg)
	if err != nil {
		return err
	}
	return s.Post(ctx, payload)
}

// Post sends a single event. Responses outside 2xx are returned as
// *RemoteRejectedError; there are no retries.
func (s *RemoteSink) Post(ctx context.Context, payload *sentry.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.dsn.StoreURL(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("X-Sentry-Auth", s.dsn.AuthHeader())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post event to %s", s.dsn)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteRejectedError{Status: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
