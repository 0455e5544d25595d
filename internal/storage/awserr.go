package storage

import (
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

var throttleCodes = map[string]bool{
	"ThrottlingException":                    true,
	"Throttling":                             true,
	"ThrottledException":                     true,
	"SlowDown":                               true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"ProvisionedThroughputExceededException": true,
}

var notFoundCodes = map[string]bool{
	"NotFound":                  true,
	"NoSuchBucket":              true,
	"NoSuchKey":                 true,
	"404":                       true,
	"ResourceNotFoundException": true,
}

var accessDeniedCodes = map[string]bool{
	"Forbidden":             true,
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"403":                   true,
}

// FromAWS classifies an AWS SDK error into an *Error for op
func FromAWS(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, KindOfAWS(err), err)
}

// KindOfAWS returns the error kind for an AWS SDK error. The API error code is
// consulted first, then the HTTP status of the response.
func KindOfAWS(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case throttleCodes[code]:
			return ErrThrottled
		case notFoundCodes[code]:
			return ErrNotFound
		case accessDeniedCodes[code]:
			return ErrAccessDenied
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusTooManyRequests:
			return ErrThrottled
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusForbidden:
			return ErrAccessDenied
		}
	}

	return ErrBackend
}
