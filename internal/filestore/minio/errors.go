package minio

import (
	"context"
	"errors"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/koustreak/ocket/internal/errs"
)

// mapError translates a MinIO SDK error into a *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrKindTransient, msg, err)
	}
	if errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindPermanent, msg, err)
	}

	// MinIO SDK exposes a typed ErrorResponse for S3-protocol errors
	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		// S3 error codes are more precise than the status
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey", "NoSuchUpload":
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case "RequestTimeout", "SlowDown", "InternalError", "ServiceUnavailable":
			return errs.Wrap(errs.ErrKindTransient, msg, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
			return errs.Wrap(errs.ErrKindPermanent, msg, err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return errs.Wrap(errs.ErrKindTransient, msg, err)
		default:
			return errs.Wrap(errs.ErrKindPermanent, msg, err)
		}
	}

	// Anything else is a connection or I/O failure
	return errs.Wrap(errs.ErrKindTransient, msg, err)
}
