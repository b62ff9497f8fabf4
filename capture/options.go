package capture

import (
	"github.com/benbjohnson/clock"

	"go.viam.com/rgbd/rimage/transform"
)

type convertFunc func(c *transform.Converter, p transform.Partition, in *transform.Inputs, out *transform.Outputs) error

func defaultConvert(c *transform.Converter, p transform.Partition, in *transform.Inputs, out *transform.Outputs) error {
	return c.Convert(p, in, out)
}

type options struct {
	clock   clock.Clock
	convert convertFunc
}

// Option configures a Pipeline.
type Option interface {
	apply(*options)
}

// funcOption wraps a function that modifies options into an implementation of the Option
// interface.
type funcOption struct {
	f func(*options)
}

func (fo *funcOption) apply(o *options) {
	fo.f(o)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{f: f}
}

// WithClock sets the clock used for publication timestamps and cycle latency.
func WithClock(clk clock.Clock) Option {
	return newFuncOption(func(o *options) {
		o.clock = clk
	})
}

func withConvertFunc(fn convertFunc) Option {
	return newFuncOption(func(o *options) {
		o.convert = fn
	})
}

func newOptions(opts []Option) options {
	o := options{clock: clock.New(), convert: defaultConvert}
	for _, opt := range opts {
		opt.apply(&o)
	}
	return o
}
