// Package handlers implements the request handlers of the cache inspection API.
package handlers

import (
	"context"
	"time"

	"github.com/castwave/client/pkg/query"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// Store is the part of the query store the API exposes
type Store interface {
	Records() []query.Record
	GetRecord(key string) (query.Record, bool)
	Invalidate(key string) bool
	InvalidatePrefix(prefix string) int
	Fetch(ctx context.Context, key string, override query.Fetcher) (any, error)
}

// KeyFilter reports whether a key may be fetched through the API.
type KeyFilter func(key string) bool

// Server holds the handler dependencies
type Server struct {
	store        Store
	allowed      KeyFilter
	fetchTimeout time.Duration
	log          logrus.FieldLogger
}

// NewServer creates a new API server instance. Fetch-through requests are
// limited to keys accepted by allowed; a nil filter rejects every key.
func NewServer(store Store, allowed KeyFilter, fetchTimeout time.Duration, log logrus.FieldLogger) *Server {
	return &Server{
		store:        store,
		allowed:      allowed,
		fetchTimeout: fetchTimeout,
		log:          log.WithField("component", "api.handlers"),
	}
}

// Register adds every route to r
func (s *Server) Register(r fiber.Router) {
	r.Get("/records", s.ListRecords)
	r.Get("/records/lookup", s.GetRecord)
	r.Post("/records/invalidate", s.Invalidate)
	r.Get("/query", s.Query)
}
