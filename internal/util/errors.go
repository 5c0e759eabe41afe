package util

import "errors"

var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransientAPI  = errors.New("transient annotation api error")
	ErrPermanentAPI  = errors.New("permanent annotation api error")
	ErrValidation    = errors.New("annotation response failed validation")
	ErrPersistence   = errors.New("batch persistence failed")
	ErrBackup        = errors.New("backup write failed")
)
