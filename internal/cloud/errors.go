package cloud

import (
	"errors"

	"github.com/aws/smithy-go"
)

// notFoundCodes covers the per-service spellings of "does not exist".
var notFoundCodes = map[string]bool{
	"ResourceNotFoundFault":     true, // DMS
	"DBInstanceNotFound":        true, // RDS
	"DBInstanceNotFoundFault":   true,
	"NoSuchEntity":              true, // IAM
	"NoSuchBucket":              true, // S3
	"NoSuchKey":                 true,
	"NotFound":                  true, // S3 HeadBucket/HeadObject
	"InvalidGroup.NotFound":     true, // EC2
	"InvalidGroupId.NotFound":   true,
	"ResourceNotFoundException": true, // CloudWatch / SNS
}

// notFoundError marks an empty describe response as not-found. Filtered
// describe calls return an empty list rather than an API error when the
// resource does not exist.
type notFoundError struct{ resource string }

func (e *notFoundError) Error() string { return e.resource + " not found" }

// NotFoundError builds a not-found error for a named resource. The Mock
// uses it to mirror provider behavior for missing resources.
func NotFoundError(resource string) error {
	return &notFoundError{resource: resource}
}

// IsNotFound reports whether err means the resource does not exist. During
// provisioning that means "create it"; during teardown it means "already
// gone", never a failure.
func IsNotFound(err error) bool {
	var nf *notFoundError
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return notFoundCodes[apiErr.ErrorCode()]
	}
	return false
}

// IsDependencyViolation reports whether err means the resource is still
// referenced by another resource. Teardown logs and skips these.
func IsDependencyViolation(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "DependencyViolation", "DeleteConflict":
			return true
		}
	}
	return false
}

// IsAlreadyExists reports whether err means the resource already exists,
// which the ensure operations treat as success.
func IsAlreadyExists(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists",
			"EntityAlreadyExists", "InvalidPermission.Duplicate",
			"ResourceAlreadyExistsFault", "InvalidGroup.Duplicate":
			return true
		}
	}
	return false
}
