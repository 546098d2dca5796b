// Package cache holds short-lived values such as the upstream health probe result.
package cache

import "time"

// Cache defines the interface for cache backends. Values must be JSON encodable so the
// Redis backend can hold them.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	SetWithTTL(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	Clear()
}
