package handlers

import "github.com/gofiber/fiber/v3"

// ErrRecordNotFound is returned when no record exists for a key
var ErrRecordNotFound = fiber.NewError(fiber.StatusNotFound, "record not found")

// ErrKeyRequired is returned when the key query parameter is missing
var ErrKeyRequired = fiber.NewError(fiber.StatusBadRequest, "key query parameter is required")

// ErrTargetRequired is returned when an invalidation names neither a key nor a prefix
var ErrTargetRequired = fiber.NewError(fiber.StatusBadRequest, "either key or prefix query parameter is required")

// ErrKeyNotAllowed is returned when a fetch-through key is outside the API
var ErrKeyNotAllowed = fiber.NewError(fiber.StatusBadRequest, "key is not a URL of the configured API")
