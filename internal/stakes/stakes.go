// Package stakes holds the set of stake amounts a guild offers in its
// queues. The original deployment kept these in a mutable process-wide
// list; here the list is an explicit, versioned value so concurrent
// reads used to populate selection menus never race with updates.
package stakes

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyList is returned when an update would leave no stake values.
	ErrEmptyList = errors.New("stakes: list must not be empty")

	// ErrNonPositive is returned when an update contains a value ≤ 0.
	ErrNonPositive = errors.New("stakes: values must be positive")
)

// Config is a versioned list of allowed stake amounts.
type Config struct {
	mu      sync.RWMutex
	values  []decimal.Decimal
	version int64
}

// NewConfig creates a config seeded with the given values. The initial
// version is 1. Panics on an invalid seed; startup values come from
// static defaults or validated configuration.
func NewConfig(values []decimal.Decimal) *Config {
	c := &Config{}
	if err := c.Replace(values); err != nil {
		panic(err)
	}
	return c
}

// List returns a sorted copy of the current values and the version they
// belong to.
func (c *Config) List() ([]decimal.Decimal, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]decimal.Decimal, len(c.values))
	copy(out, c.values)
	return out, c.version
}

// Replace swaps the whole list atomically and bumps the version.
func (c *Config) Replace(values []decimal.Decimal) error {
	if len(values) == 0 {
		return ErrEmptyList
	}
	for _, v := range values {
		if !v.IsPositive() {
			return ErrNonPositive
		}
	}

	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = sorted
	c.version++
	return nil
}

// Allowed reports whether v is one of the configured stake amounts.
func (c *Config) Allowed(v decimal.Decimal) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.values {
		if s.Equal(v) {
			return true
		}
	}
	return false
}

// Defaults returns the stock stake list offered when nothing is configured.
func Defaults() []decimal.Decimal {
	raw := []string{"1.00", "2.00", "3.00", "5.00", "10.00", "20.00", "30.00", "50.00", "100.00"}
	out := make([]decimal.Decimal, 0, len(raw))
	for _, s := range raw {
		v, _ := decimal.NewFromString(s)
		out = append(out, v)
	}
	return out
}
