package service

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomAlreadyExists = errors.New("room id already exists")
	ErrWrongRoomKind     = errors.New("this is not a private room")
	ErrInvalidSecret     = errors.New("incorrect password")
	ErrNotInRoom         = errors.New("not in a room")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrValidation        = errors.New("invalid request")
	ErrInternal          = errors.New("internal server error")
)

// ValidationError reports a malformed or incomplete request. It matches ErrValidation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

var publicErrors = []error{
	ErrRoomNotFound,
	ErrRoomAlreadyExists,
	ErrWrongRoomKind,
	ErrInvalidSecret,
	ErrNotInRoom,
	ErrAlreadyInRoom,
}

// PublicMessage turns err into the one-line text shown to clients.
func PublicMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	for _, known := range publicErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInternal.Error()
}
