package redismq

import "time"

// ProducerOption configures a Producer returned by Client.Producer.
type ProducerOption func(*Producer)

// WithMaxLen sets the approximate MAXLEN bound used to trim the stream on
// every XADD (default 100). Approximate trimming only: this package never
// relies on exact stream length (§9(c)).
func WithMaxLen(maxlen int64) ProducerOption {
	return func(p *Producer) { p.maxlen = maxlen }
}

// WithConfirmTimeout sets how long AddConfirmedMessage waits for a reply
// before returning a Timeout Error reply (default 10s).
func WithConfirmTimeout(timeout time.Duration) ProducerOption {
	return func(p *Producer) { p.timeout = timeout }
}

// ConsumerOption configures a Consumer returned by Client.Consumer.
type ConsumerOption func(*consumerSettings)

type consumerSettings struct {
	scanPendingOnStart bool
	claimStale         bool
	minIdle            time.Duration
	blockTimeout       time.Duration
}

func defaultConsumerSettings() consumerSettings {
	return consumerSettings{
		scanPendingOnStart: true,
		claimStale:         true,
		minIdle:            60 * time.Second,
		blockTimeout:       10 * time.Second,
	}
}

// WithScanPendingOnStart controls whether Client.Consumer inspects XPENDING
// at construction time (default true).
func WithScanPendingOnStart(scan bool) ConsumerOption {
	return func(s *consumerSettings) { s.scanPendingOnStart = scan }
}

// WithClaimStale controls whether Client.Consumer claims pending entries
// older than the min-idle threshold onto itself at construction time
// (default true).
func WithClaimStale(claim bool) ConsumerOption {
	return func(s *consumerSettings) { s.claimStale = claim }
}

// WithMinIdle sets the staleness threshold for XCLAIM (default 60s).
func WithMinIdle(d time.Duration) ConsumerOption {
	return func(s *consumerSettings) { s.minIdle = d }
}

// WithBlockTimeout sets the XREADGROUP BLOCK duration (default 10s).
func WithBlockTimeout(d time.Duration) ConsumerOption {
	return func(s *consumerSettings) { s.blockTimeout = d }
}
