package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/castwave/client/pkg/query"
	"github.com/castwave/client/pkg/remote"
	"github.com/gofiber/fiber/v3"
)

// RecordView is the JSON form of a record
type RecordView struct {
	Key         string     `json:"key"`
	Status      string     `json:"status"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Version     uint64     `json:"version"`
	Listeners   int        `json:"listeners"`
	HasData     bool       `json:"hasData"`
	Error       string     `json:"error,omitempty"`
	Data        any        `json:"data,omitempty"`
}

func newRecordView(rec query.Record, withData bool) RecordView {
	view := RecordView{
		Key:       rec.Key,
		Status:    string(rec.Status),
		Version:   rec.Version,
		Listeners: rec.Listeners,
		HasData:   rec.HasData(),
	}

	if !rec.LastUpdated.IsZero() {
		updated := rec.LastUpdated.UTC()
		view.LastUpdated = &updated
	}

	if rec.Err != nil {
		view.Error = rec.Err.Error()
	}

	if withData {
		view.Data = rec.Data
	}

	return view
}

// ListRecords handles GET /api/v1/records
func (s *Server) ListRecords(c fiber.Ctx) error {
	prefix := c.Query("prefix")
	status := c.Query("status")

	views := make([]RecordView, 0)

	for _, rec := range s.store.Records() {
		if prefix != "" && !strings.HasPrefix(rec.Key, prefix) {
			continue
		}

		if status != "" && string(rec.Status) != status {
			continue
		}

		views = append(views, newRecordView(rec, false))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"records": views,
		"total":   len(views),
	})
}

// GetRecord handles GET /api/v1/records/lookup?key=
func (s *Server) GetRecord(c fiber.Ctx) error {
	key := c.Query("key")
	if key == "" {
		return ErrKeyRequired
	}

	rec, ok := s.store.GetRecord(key)
	if !ok {
		return ErrRecordNotFound
	}

	return c.Status(fiber.StatusOK).JSON(newRecordView(rec, true))
}

// Invalidate handles POST /api/v1/records/invalidate?key=|prefix=
func (s *Server) Invalidate(c fiber.Ctx) error {
	key := c.Query("key")
	prefix := c.Query("prefix")

	switch {
	case key != "":
		if !s.store.Invalidate(key) {
			return ErrRecordNotFound
		}

		s.log.WithField("key", key).Info("Invalidated record via API")

		return c.Status(fiber.StatusOK).JSON(fiber.Map{"invalidated": 1})
	case prefix != "":
		n := s.store.InvalidatePrefix(prefix)

		s.log.WithFields(map[string]any{"prefix": prefix, "count": n}).Info("Invalidated records via API")

		return c.Status(fiber.StatusOK).JSON(fiber.Map{"invalidated": n})
	default:
		return ErrTargetRequired
	}
}

// Query handles GET /api/v1/query?key=, fetching through the store. A fetch
// already in flight for the key is joined. Only keys under the configured API
// are accepted.
func (s *Server) Query(c fiber.Ctx) error {
	key := c.Query("key")
	if key == "" {
		return ErrKeyRequired
	}

	if s.allowed == nil || !s.allowed(key) {
		s.log.WithField("key", key).Warn("Rejected fetch-through of a key outside the API")
		return ErrKeyNotAllowed
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()

	data, err := s.store.Fetch(ctx, key, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fiber.NewError(fiber.StatusGatewayTimeout, "fetch timed out")
		}

		body := fiber.Map{
			"error": err.Error(),
			"code":  fiber.StatusBadGateway,
		}

		if kind, ok := remote.KindOf(err); ok {
			body["kind"] = kind.String()
		}

		return c.Status(fiber.StatusBadGateway).JSON(body)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"key":  key,
		"data": data,
	})
}
