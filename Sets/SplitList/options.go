package SplitList

import (
	"github.com/g-m-twostay/go-cds/RCU"
	"github.com/g-m-twostay/go-cds/Sets/OrderedList"
	"go.uber.org/zap"
)

type config struct {
	itemCount  uint
	loadFactor uint
	static     bool
	stats      bool
	domain     *RCU.Domain
	log        *zap.SugaredLogger
	allocator  any //Allocator[T]
	list       any //OrderedList.Engine[T]
}

type Option func(*config)

// WithItemCount sizes the initial bucket table for about n items. For a static table it's the final size.
func WithItemCount(n uint) Option {
	return func(c *config) {
		c.itemCount = n
	}
}

// WithLoadFactor sets the average number of items per bucket above which the table doubles. Defaults to 1.
func WithLoadFactor(n uint) Option {
	return func(c *config) {
		c.loadFactor = max(n, 1)
	}
}

// WithStaticTable makes the bucket table a single array sized by WithItemCount and WithLoadFactor that never grows.
func WithStaticTable() Option {
	return func(c *config) {
		c.static = true
	}
}

// WithStatistics turns on operation counters, see Set.Statistics.
func WithStatistics() Option {
	return func(c *config) {
		c.stats = true
	}
}

// WithDomain shares an RCU domain between several sets. By default each Set has its own.
func WithDomain(d *RCU.Domain) Option {
	return func(c *config) {
		c.domain = d
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithAllocator replaces the default PoolAllocator. T must match the element type of the Set.
func WithAllocator[T any](a Allocator[T]) Option {
	return func(c *config) {
		c.allocator = a
	}
}

// WithOrderedList replaces the default OrderedList.Michael engine. T must match the element type of the Set.
func WithOrderedList[T any](e OrderedList.Engine[T]) Option {
	return func(c *config) {
		c.list = e
	}
}
