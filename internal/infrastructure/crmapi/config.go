// Package crmapi is the HTTP client for the upstream CRM REST API. It
// covers the search, list, association and batch-read endpoints the
// dashboard needs, with retry handling for the CRM's rate limits.
package crmapi

import (
	"errors"
	"strings"
	"time"
)

// API limits and retry defaults.
const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 2 * time.Second
	defaultAssocBatchSize = 3
	defaultAssocDelay     = 200 * time.Millisecond

	// maxPageSize is the CRM's hard cap per search/list page.
	maxPageSize = 100
)

// ErrMissingAccessToken indicates the client was built without a token.
var ErrMissingAccessToken = errors.New("crmapi: access token is required")

// Config holds the CRM connection settings.
type Config struct {
	BaseURL        string
	AccessToken    string
	RequestTimeout time.Duration
	MaxAttempts    int           // Attempts per request including the first
	InitialBackoff time.Duration // First retry delay; doubles per attempt
	PageSize       int
	AssocBatchSize int // Concurrent association lookups per batch
	AssocDelay     time.Duration
}

// Validate checks the settings and fills in defaults for zero values.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return ErrMissingAccessToken
	}
	if c.BaseURL == "" {
		return errors.New("crmapi: base URL is required")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.PageSize <= 0 || c.PageSize > maxPageSize {
		c.PageSize = maxPageSize
	}
	if c.AssocBatchSize <= 0 {
		c.AssocBatchSize = defaultAssocBatchSize
	}
	if c.AssocDelay < 0 {
		c.AssocDelay = defaultAssocDelay
	}
	return nil
}
