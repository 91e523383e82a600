package fieldbus

import "errors"

// A nil error is Ok. Everything the masters and codecs return wraps one of these.
var (
	ErrCommunicationFailure = errors.New("communication failure")
	ErrNotSupported         = errors.New("not supported")
	ErrIllegalRegister      = errors.New("illegal register")
	ErrIllegalOperation     = errors.New("illegal operation")
)
