package staging

import (
	"errors"
	"fmt"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"
)

// Error is a staging store failure with the object it concerned.
type Error struct {
	Op         string
	Bucket     string
	Key        string
	StatusCode int
	Code       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("staging.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("staging.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("staging.%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus is 0 when the request never got a response.
func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

var (
	ErrUnknownBackend = errors.New("unknown staging backend")
	ErrNoBucket       = errors.New("staging bucket is not configured")
)

// s3Error annotates an aws-sdk-go-v2 failure with its HTTP status and code.
func s3Error(op, bucket, key string, err error) *Error {
	e := &Error{Op: op, Bucket: bucket, Key: key, Err: err}

	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		e.StatusCode = re.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		e.Code = apiErr.ErrorCode()
	}
	return e
}

// minioError does the same for minio-go, which reports through ErrorResponse.
func minioError(op, bucket, key string, err error) *Error {
	e := &Error{Op: op, Bucket: bucket, Key: key, Err: err}

	resp := minio.ToErrorResponse(err)
	e.StatusCode = resp.StatusCode
	e.Code = resp.Code
	return e
}
