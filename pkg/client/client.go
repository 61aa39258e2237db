// Package client is a thin convenience wrapper over *flatkv.Store,
// adapted from the teacher's own thin client-over-storage-interface
// layer: a handful of ergonomic methods (plain string keys, a single
// combined put-or-overwrite call) for callers that don't need the
// full Store API surface.
package client

import "github.com/vecble/flatkv"

// Client wraps a *flatkv.Store with string-keyed convenience methods.
type Client struct {
	store *flatkv.Store
}

// New wraps an already-open Store.
func New(store *flatkv.Store) *Client {
	return &Client{store: store}
}

// Set stores value under key, overwriting any existing entry.
func (c *Client) Set(key, value string) error {
	return c.store.Put([]byte(key), []byte(value), true)
}

// SetIfAbsent stores value under key only if key is not already
// present.
func (c *Client) SetIfAbsent(key, value string) error {
	return c.store.Put([]byte(key), []byte(value), false)
}

// Get returns the value stored under key, and whether it was found.
func (c *Client) Get(key string) (string, bool, error) {
	v, err := c.store.Get([]byte(key))
	if err != nil {
		if flatkv.Is(err, flatkv.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(v), true, nil
}

// Has reports whether key is present.
func (c *Client) Has(key string) (bool, error) {
	return c.store.Has([]byte(key))
}

// Rename moves an entry from oldKey to newKey.
func (c *Client) Rename(oldKey, newKey string) error {
	return c.store.Rename([]byte(oldKey), []byte(newKey))
}
