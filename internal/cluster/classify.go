package cluster

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"ephemcp/internal/api"
)

// Classify maps an error returned by the Kubernetes API into the api error
// taxonomy. Context cancellation is passed through untouched so callers can
// tell it apart from control-plane failures.
func Classify(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case apierrors.IsNotFound(err):
		return api.NewError(api.KindNotFound, err, format, args...)
	case isTransient(err):
		return api.NewTransientError(err, format, args...)
	default:
		return api.NewPermanentError(err, format, args...)
	}
}

func isTransient(err error) bool {
	if apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err) ||
		apierrors.IsUnexpectedServerError(err) ||
		apierrors.IsConflict(err) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
