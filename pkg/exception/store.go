package exception

import "errors"

var (
	ErrStoreNilClient      = errors.New("store: nil client")
	ErrStoreEmptyDSN       = errors.New("store: empty dsn")
	ErrStoreAlreadyStarted = errors.New("store: already started")
)
