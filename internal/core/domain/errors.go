package domain

import "errors"

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrLotNotFound          = errors.New("lot not found")
	ErrInvalidReference     = errors.New("lot does not belong to product")
	ErrNoLotAvailable       = errors.New("no lot available for product")
	ErrInsufficientQuantity = errors.New("insufficient lot quantity")
	ErrUnknownPolicy        = errors.New("unknown allocation policy")
	ErrConflict             = errors.New("concurrent modification conflict")
	ErrDuplicateRequest     = errors.New("duplicate request")
)
