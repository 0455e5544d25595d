package validation

import (
	"errors"
	"regexp"
	"strings"
)

// MaxObjectKeyLength is the longest accepted object key, in UTF-8 bytes as S3
// measures it
const MaxObjectKeyLength = 1024

// Bucket and key rule violations. The message is sent to clients as the error detail.
var (
	ErrBucketEmpty        = errors.New("Bucket name cannot be empty")
	ErrBucketLength       = errors.New("Bucket name must be between 3 and 63 characters long")
	ErrBucketCharset      = errors.New("Bucket name can only contain lowercase letters, numbers, dots, and hyphens, and must start and end with a letter or number")
	ErrBucketAdjacentDots = errors.New("Bucket name cannot contain two adjacent dots")
	ErrBucketIPAddress    = errors.New("Bucket name cannot be formatted as an IP address")

	ErrKeyEmpty        = errors.New("Object key cannot be empty")
	ErrKeyTooLong      = errors.New("Object key cannot exceed 1024 characters")
	ErrKeyControlChars = errors.New("Object key cannot contain control characters")
	ErrKeyDoubleSlash  = errors.New("Object key cannot contain consecutive slashes")
)

var (
	bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)
	ipv4Pattern   = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	controlChars  = regexp.MustCompile(`[\x00-\x1F\x7F]`)
)

// ValidateBucketName checks bucket against the object-store naming rules.
// Rules are checked in order and the first violation is returned.
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return ErrBucketEmpty
	}
	if len(bucket) < 3 || len(bucket) > 63 {
		return ErrBucketLength
	}
	if strings.Contains(bucket, "..") {
		return ErrBucketAdjacentDots
	}
	if !bucketPattern.MatchString(bucket) {
		return ErrBucketCharset
	}
	if ipv4Pattern.MatchString(bucket) {
		return ErrBucketIPAddress
	}
	return nil
}

// ValidateObjectKey checks key against the object-store key rules
func ValidateObjectKey(key string) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if len(key) > MaxObjectKeyLength {
		return ErrKeyTooLong
	}
	if controlChars.MatchString(key) {
		return ErrKeyControlChars
	}
	if strings.Contains(key, "//") {
		return ErrKeyDoubleSlash
	}
	return nil
}
