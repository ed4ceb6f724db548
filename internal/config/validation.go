package config

import (
	"fmt"
	"strings"

	"github.com/giantswarm/mcp-oauth/security"

	"smartlaunch/internal/storage"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// Validate checks the storage, session and HTTP settings. The SMART client
// options are checked by the authorization service when they are used.
func (c Config) Validate() error {
	var errs ValidationErrors

	if c.Session.TTL < 0 {
		errs.Add("session.ttl", "must not be negative", c.Session.TTL)
	}
	if c.Discovery.CacheTTL < 0 {
		errs.Add("discovery.cacheTtl", "must not be negative", c.Discovery.CacheTTL)
	}
	if c.HTTP.Timeout < 0 {
		errs.Add("http.timeout", "must not be negative", c.HTTP.Timeout)
	}

	storageType := c.Storage.Type
	if storageType == "" {
		storageType = storage.TypeFile
	}
	if err := ValidateOneOf("storage.type", storageType, []string{storage.TypeMemory, storage.TypeFile, storage.TypeValkey}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	if storageType == storage.TypeValkey {
		if err := ValidateRequired("storage.valkey.address", c.Storage.Valkey.Address, "valkey storage"); err != nil {
			errs = append(errs, err.(ValidationError))
		}
		if c.Storage.Valkey.DB < 0 {
			errs.Add("storage.valkey.db", "must not be negative", c.Storage.Valkey.DB)
		}
	}

	if c.Storage.EncryptionKey != "" {
		// The key value is never echoed back.
		if _, err := security.KeyFromBase64(c.Storage.EncryptionKey); err != nil {
			errs.Add("storage.encryptionKey", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
