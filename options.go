package flatkv

import (
	"go.uber.org/zap"

	"github.com/vecble/flatkv/internal/bptree"
	"github.com/vecble/flatkv/internal/cache"
)

// Options holds Open's tunables. Use the With* functions below rather
// than constructing this directly; defaultOptions fills in everything
// a caller doesn't override.
type Options struct {
	// BlockSize is the on-disk block size in bytes. A new file is
	// created with it; reopening an existing file with a BlockSize
	// other than the one it was created with fails with ErrBadVersion
	// (spec §7 BadVersion).
	BlockSize uint32

	// B is the B+ tree order: a node holds at most 2B-1 keys. As with
	// BlockSize, reopening a file with a different B fails with
	// ErrBadVersion.
	B uint16

	// CacheSize is the block cache's main-map capacity (spec §4.2).
	CacheSize int

	// NodeCacheSize is the B+ tree's decoded-node cache capacity (spec
	// §4.4).
	NodeCacheSize int

	// UID tags this Store's keyspace, letting several logical
	// keyspaces share one file without their keys colliding (spec §3
	// "Header uid slots").
	UID uint8

	Logger *zap.Logger

	userHeaderSlots map[uint8]string
}

// Option configures a Store at Open time.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		BlockSize:       4096,
		B:               32,
		CacheSize:       cache.DefaultCacheSize,
		NodeCacheSize:   bptree.DefaultNodeCacheSize,
		UID:             0,
		Logger:          zap.NewNop(),
		userHeaderSlots: make(map[uint8]string),
	}
}

// WithBlockSize sets the on-disk block size for a newly created file.
func WithBlockSize(n uint32) Option {
	return func(o *Options) { o.BlockSize = n }
}

// WithOrder sets the B+ tree order for a newly created file.
func WithOrder(b uint16) Option {
	return func(o *Options) { o.B = b }
}

// WithCacheSize sets the block cache's capacity.
func WithCacheSize(n int) Option {
	return func(o *Options) { o.CacheSize = n }
}

// WithNodeCacheSize sets the B+ tree's decoded-node cache capacity.
func WithNodeCacheSize(n int) Option {
	return func(o *Options) { o.NodeCacheSize = n }
}

// WithUID tags this Store's keyspace (spec §3 "Header uid slots").
func WithUID(uid uint8) Option {
	return func(o *Options) { o.UID = uid }
}

// WithLogger sets the zap logger used for cache/tree diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(o *Options) { o.Logger = log }
}

// WithHeaderString seeds one of the header's opaque uid->string slots
// (spec §3: "reserved slots for up to several user-header strings").
// Only meaningful when creating a new file.
func WithHeaderString(uid uint8, s string) Option {
	return func(o *Options) { o.userHeaderSlots[uid] = s }
}

// HeaderString returns one of the header's opaque metadata strings and
// whether it is set.
func (s *Store) HeaderString(uid uint8) (string, bool) {
	v, ok := s.opts.userHeaderSlots[uid]
	return v, ok
}

// SetHeaderString sets one of the header's opaque metadata strings;
// it takes effect at the next Close.
func (s *Store) SetHeaderString(uid uint8, v string) {
	s.opts.userHeaderSlots[uid] = v
}
