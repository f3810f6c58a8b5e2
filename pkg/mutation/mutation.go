// Package mutation implements one-shot remote writes. Mutations are never
// cached and never touch the query store; callers invalidate affected queries
// themselves.
package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/castwave/client/pkg/observability"
	"github.com/castwave/client/pkg/remote"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrUnsupportedMethod = errors.New("mutation method must be POST, PUT, PATCH or DELETE")
	ErrURLRequired       = errors.New("mutation URL is required")
	ErrMissingPathParam  = errors.New("mutation body is missing path parameter")
	ErrBodyNotObject     = errors.New("mutation body must encode to a JSON object")
)

// Status is the state of the most recent call.
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusLoading Status = "LOADING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Doer sends a request and applies the envelope rule to the response.
type Doer interface {
	Do(ctx context.Context, req remote.Request) (json.RawMessage, error)
}

// Config describes a mutation endpoint.
type Config[TBody, TResult any] struct {
	URL    URLFunc[TBody]
	Method string
	// UseQueryEncoding also sends the body's fields in the query string.
	UseQueryEncoding bool
	// Authenticated attaches the session bearer token.
	Authenticated bool

	OnSuccess func(TResult)
	OnFailure func(error)
	// OnSettled runs after OnSuccess or OnFailure on every call.
	OnSettled func(TResult, error)
}

// Validate checks if the configuration is valid
func (c *Config[TBody, TResult]) Validate() error {
	switch c.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMethod, c.Method)
	}

	if c.URL == nil {
		return ErrURLRequired
	}

	return nil
}

// Mutation is a reusable write operation. It is safe for concurrent use; the
// reported status, result and error belong to the most recently settled call.
type Mutation[TBody, TResult any] struct {
	client Doer
	cfg    Config[TBody, TResult]
	log    logrus.FieldLogger

	mu     sync.Mutex
	status Status
	result TResult
	err    error
}

// New creates a mutation bound to client.
func New[TBody, TResult any](client Doer, cfg Config[TBody, TResult], log logrus.FieldLogger) (*Mutation[TBody, TResult], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Mutation[TBody, TResult]{
		client: client,
		cfg:    cfg,
		log:    log.WithField("component", "mutation"),
		status: StatusIdle,
	}, nil
}

// Mutate sends body. Exactly one of OnSuccess or OnFailure runs, then
// OnSettled. Transport, protocol and application failures are all returned
// as the error.
func (m *Mutation[TBody, TResult]) Mutate(ctx context.Context, body TBody) (TResult, error) {
	m.mu.Lock()
	m.status = StatusLoading
	m.mu.Unlock()

	start := time.Now()

	result, err := m.send(ctx, body)

	m.mu.Lock()
	if err != nil {
		m.status = StatusFailure
		m.err = err
	} else {
		m.status = StatusSuccess
		m.result = result
		m.err = nil
	}
	m.mu.Unlock()

	duration := time.Since(start)
	log := m.log.WithFields(logrus.Fields{
		"method":   m.cfg.Method,
		"duration": duration,
	})

	if err != nil {
		observability.RecordMutation(m.cfg.Method, "failure", duration.Seconds())
		log.WithError(err).Warn("Mutation failed")

		if m.cfg.OnFailure != nil {
			m.cfg.OnFailure(err)
		}
	} else {
		observability.RecordMutation(m.cfg.Method, "success", duration.Seconds())
		log.Debug("Mutation succeeded")

		if m.cfg.OnSuccess != nil {
			m.cfg.OnSuccess(result)
		}
	}

	if m.cfg.OnSettled != nil {
		m.cfg.OnSettled(result, err)
	}

	return result, err
}

func (m *Mutation[TBody, TResult]) send(ctx context.Context, body TBody) (TResult, error) {
	var result TResult

	target, err := m.cfg.URL(body)
	if err != nil {
		return result, fmt.Errorf("failed to build mutation URL: %w", err)
	}

	if m.cfg.UseQueryEncoding {
		query, err := EncodeQuery(body)
		if err != nil {
			return result, err
		}

		target = AppendQuery(target, query)
	}

	raw, err := m.client.Do(ctx, remote.Request{
		Method: m.cfg.Method,
		URL:    target,
		Body:   body,
		Auth:   m.cfg.Authenticated,
	})
	if err != nil {
		return result, err
	}

	if len(raw) == 0 || string(raw) == "null" {
		return result, nil
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("failed to decode mutation result: %w", err)
	}

	return result, nil
}

// Status returns the state of the most recent call.
func (m *Mutation[TBody, TResult]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// IsLoading reports whether a call is in progress.
func (m *Mutation[TBody, TResult]) IsLoading() bool {
	return m.Status() == StatusLoading
}

// Result returns the result of the last successful call.
func (m *Mutation[TBody, TResult]) Result() TResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.result
}

// Err returns the error of the last call, or nil if it succeeded.
func (m *Mutation[TBody, TResult]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.err
}
