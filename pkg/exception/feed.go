package exception

import "errors"

var (
	ErrFeedUnknownInstrument = errors.New("feed: unknown instrument")
	ErrFeedNilConsumer       = errors.New("feed: nil consumer")
	ErrFeedClosed            = errors.New("feed: closed")
	ErrFeedInvalidTick       = errors.New("feed: invalid tick")
)
