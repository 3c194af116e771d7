package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"ttl-cache-store/internal/cache"
	"ttl-cache-store/internal/codec"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WriteRequest represents the payload of PUT /api/cache/*key
type WriteRequest struct {
	Value     json.RawMessage `json:"value" binding:"required"`
	ExpiresIn string          `json:"expires_in"`
}

// DeleteMatchedRequest represents the payload of POST /api/cache/delete_matched
type DeleteMatchedRequest struct {
	Pattern string `json:"pattern" binding:"required"`
}

// CacheHandler exposes a cache.Store over HTTP.
type CacheHandler struct {
	store *cache.Store
	log   *zap.Logger
}

// NewCacheHandler creates a CacheHandler.
func NewCacheHandler(store *cache.Store, log *zap.Logger) *CacheHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CacheHandler{store: store, log: log}
}

func cacheKey(c *gin.Context) (string, bool) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Key is required"})
		return "", false
	}
	return key, true
}

// respondError maps cache errors onto HTTP status codes.
func (h *CacheHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, cache.ErrInvalidKey),
		errors.Is(err, cache.ErrInvalidPattern),
		errors.Is(err, cache.ErrInvalidTTL),
		errors.Is(err, codec.ErrUnsupportedValue):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, cache.ErrDuplicateKey):
		status, message = http.StatusConflict, "Key already exists"
	case errors.Is(err, cache.ErrStoreUnavailable):
		status, message = http.StatusServiceUnavailable, "Cache store unavailable"
	case errors.Is(err, cache.ErrCorruptPayload):
		message = "Stored value could not be decoded"
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("cache request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message})
}

// Get returns the value stored under key
// GET /api/cache/*key
func (h *CacheHandler) Get(c *gin.Context) {
	key, ok := cacheKey(c)
	if !ok {
		return
	}

	if c.Query("format") == "binary" {
		payload, found, err := h.store.ReadPayload(c.Request.Context(), key)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}
		c.Data(http.StatusOK, "application/octet-stream", payload)
		return
	}

	value, found, err := h.store.Read(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": toJSON(value)})
}

// Put writes a value, replacing any previous one
// PUT /api/cache/*key
func (h *CacheHandler) Put(c *gin.Context) {
	key, ok := cacheKey(c)
	if !ok {
		return
	}

	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. Value is required."})
		return
	}

	var opts cache.WriteOptions
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_in must be a positive duration such as 90s or 1h"})
			return
		}
		opts.ExpiresIn = d
	}

	value, err := decodeJSONValue(req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid value: " + err.Error()})
		return
	}

	if err := h.store.Write(c.Request.Context(), key, value, opts); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete removes a key whether or not it expired
// DELETE /api/cache/*key
func (h *CacheHandler) Delete(c *gin.Context) {
	key, ok := cacheKey(c)
	if !ok {
		return
	}

	existed, err := h.store.Delete(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": existed})
}

// Inspect returns entry metadata including expired entries
// GET /api/entries/*key
func (h *CacheHandler) Inspect(c *gin.Context) {
	key, ok := cacheKey(c)
	if !ok {
		return
	}

	info, err := h.store.Inspect(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if info == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// DeleteMatched removes every key matching a regular expression
// POST /api/cache/delete_matched
func (h *CacheHandler) DeleteMatched(c *gin.Context) {
	var req DeleteMatchedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. Pattern is required."})
		return
	}

	pattern, err := regexp.Compile(req.Pattern)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pattern: " + err.Error()})
		return
	}

	deleted, err := h.store.DeleteMatched(c.Request.Context(), pattern)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Cleanup removes expired entries
// POST /api/cache/cleanup
func (h *CacheHandler) Cleanup(c *gin.Context) {
	deleted, err := h.store.Cleanup(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Clear removes every entry
// DELETE /api/cache
func (h *CacheHandler) Clear(c *gin.Context) {
	deleted, err := h.store.Clear(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.log.Info("cache cleared over http", zap.String("username", c.GetString("username")))
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Stats reports the row count
// GET /api/stats
func (h *CacheHandler) Stats(c *gin.Context) {
	n, err := h.store.Count(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":      n,
		"defaultTtl": h.store.DefaultTTL().String(),
	})
}
