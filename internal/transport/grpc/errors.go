package grpc

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"carebook/backend/internal/service/appointments"
)

const errorDomain = "carebook"

var kindCodes = map[appointments.Kind]codes.Code{
	appointments.KindNotFound:            codes.NotFound,
	appointments.KindInvalidArgument:     codes.InvalidArgument,
	appointments.KindInvalidRole:         codes.InvalidArgument,
	appointments.KindPastDate:            codes.InvalidArgument,
	appointments.KindSlotConflict:        codes.FailedPrecondition,
	appointments.KindInvalidTransition:   codes.FailedPrecondition,
	appointments.KindLockoutWindow:       codes.FailedPrecondition,
	appointments.KindIdempotencyConflict: codes.FailedPrecondition,
	appointments.KindStorageUnavailable:  codes.Unavailable,
	appointments.KindInternal:            codes.Internal,
}

// toStatus maps a service error to a gRPC status. The error kind travels as
// an ErrorInfo detail so clients can branch on it without parsing messages.
func toStatus(err error) error {
	kind := appointments.KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		kind, code = appointments.KindInternal, codes.Internal
	}

	st := status.New(code, publicMessage(kind, err))
	if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: string(kind), Domain: errorDomain}); derr == nil {
		st = withInfo
	}
	return st.Err()
}

func publicMessage(kind appointments.Kind, err error) string {
	switch kind {
	case appointments.KindInternal:
		return "internal error"
	case appointments.KindStorageUnavailable:
		return "storage temporarily unavailable, retry later"
	}
	var e *appointments.Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	return string(kind)
}

// ErrorKind extracts the kind a server attached to a status error.
func ErrorKind(err error) appointments.Kind {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return appointments.Kind(info.GetReason())
		}
	}
	return ""
}
