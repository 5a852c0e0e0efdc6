package cache

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Defaults applied by DefaultPolicy.
const (
	DefaultMaxEntries = 4096
	DefaultTTL        = time.Hour
)

// ErrInvalidPolicy is returned by Policy.Validate.
var ErrInvalidPolicy = errors.New("cache: invalid policy")

// Policy bounds a cache by entry count and entry age.
type Policy struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// DefaultPolicy returns 4096 entries living one hour.
func DefaultPolicy() Policy {
	return Policy{MaxEntries: DefaultMaxEntries, TTL: DefaultTTL}
}

// Validate rejects non-positive limits.
func (p Policy) Validate() error {
	if p.MaxEntries <= 0 {
		return errors.Join(ErrInvalidPolicy, errors.New("max_entries must be positive"))
	}
	if p.TTL <= 0 {
		return errors.Join(ErrInvalidPolicy, errors.New("ttl must be positive"))
	}
	return nil
}

// WithDefaults fills zero fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxEntries == 0 {
		p.MaxEntries = d.MaxEntries
	}
	if p.TTL == 0 {
		p.TTL = d.TTL
	}
	return p
}

// New builds a goroutine-safe LRU whose entries also expire after p.TTL.
func New[K comparable, V any](p Policy) *expirable.LRU[K, V] {
	p = p.WithDefaults()
	return expirable.NewLRU[K, V](p.MaxEntries, nil, p.TTL)
}
