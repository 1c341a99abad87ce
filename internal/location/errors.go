package location

import (
	"context"
	"errors"
	"fmt"

	"wisefido-sos/internal/errs"
)

// 平台定位错误码（与设备端约定）
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// PlatformError 平台返回的原始定位错误
type PlatformError struct {
	Code    int
	Message string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("location error %d: %s", e.Code, e.Message)
}

// MapError 把平台错误归一到 PermissionDenied / PositionUnavailable / Timeout / Unknown
func MapError(err error) *errs.Error {
	if err == nil {
		return nil
	}

	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, err, "location request timed out")
	}

	var pe *PlatformError
	if errors.As(err, &pe) {
		switch pe.Code {
		case CodePermissionDenied:
			return errs.Wrap(errs.KindPermissionDenied, err, "location permission denied")
		case CodePositionUnavailable:
			return errs.Wrap(errs.KindPositionUnavailable, err, "position unavailable")
		case CodeTimeout:
			return errs.Wrap(errs.KindTimeout, err, "location request timed out")
		}
	}

	return errs.Wrap(errs.KindUnknown, err, "unknown location error")
}
