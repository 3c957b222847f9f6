package exception

import "errors"

var (
	ErrOrderNilUsecase          = errors.New("order: nil usecase")
	ErrOrderNilDelegator        = errors.New("order: nil delegator")
	ErrOrderInvalidRequest      = errors.New("order: invalid request")
	ErrOrderInvalidWorkerConfig = errors.New("order: invalid worker config")
	ErrOrderQueueFull           = errors.New("order: queue full")
	ErrOrderClosed              = errors.New("order: broker closed")
	ErrOrderSubmitTimeout       = errors.New("order: submit timed out")
	ErrOrderRejected            = errors.New("order: rejected by broker")
)
