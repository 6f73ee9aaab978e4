package s3

import (
	"context"
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/koustreak/ocket/internal/errs"
)

// mapError translates an aws-sdk-go-v2 error into a *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrKindTransient, msg, err)
	}
	var canceled *smithy.CanceledError
	if errors.Is(err, context.Canceled) || errors.As(err, &canceled) {
		return errs.Wrap(errs.ErrKindPermanent, msg, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound", "NoSuchUpload":
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable",
			"Throttling", "ThrottlingException", "RequestTimeTooSkewed":
			return errs.Wrap(errs.ErrKindTransient, msg, err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		switch {
		case status == http.StatusNotFound:
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case status == http.StatusTooManyRequests, status >= 500:
			return errs.Wrap(errs.ErrKindTransient, msg, err)
		default:
			return errs.Wrap(errs.ErrKindPermanent, msg, err)
		}
	}

	if apiErr != nil {
		if apiErr.ErrorFault() == smithy.FaultServer {
			return errs.Wrap(errs.ErrKindTransient, msg, err)
		}
		return errs.Wrap(errs.ErrKindPermanent, msg, err)
	}

	// No response at all: connection or I/O failure
	return errs.Wrap(errs.ErrKindTransient, msg, err)
}
