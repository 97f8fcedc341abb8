package s3lite

import (
	"fmt"
	"strings"
)

// Locator derives the backend key for an object. Every logical bucket shares
// one physical namespace, so the bucket name becomes the first path segment.
// Leading slashes on the key are dropped.
func Locator(bucketName, objectKey string) string {
	return bucketName + "/" + strings.TrimLeft(objectKey, "/")
}

// ParseLocator is the inverse of Locator. Bucket names never contain '/',
// so the first separator splits bucket from key.
func ParseLocator(locator string) (bucketName, objectKey string, ok bool) {
	bucketName, objectKey, ok = strings.Cut(locator, "/")
	if !ok || bucketName == "" || objectKey == "" {
		return "", "", false
	}
	return bucketName, objectKey, true
}

// ValidateBucketName checks length (3-63) and charset: lowercase letters,
// digits, '.' and '-', beginning and ending with a letter or digit.
func ValidateBucketName(name string) error {
	if len(name) < MinBucketNameLength || len(name) > MaxBucketNameLength {
		return fmt.Errorf("%w: must be %d-%d characters", ErrInvalidBucketName, MinBucketNameLength, MaxBucketNameLength)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		alnum := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
		if alnum {
			continue
		}
		if (c == '.' || c == '-') && i != 0 && i != len(name)-1 {
			continue
		}
		return fmt.Errorf("%w: %q", ErrInvalidBucketName, name)
	}
	return nil
}

// ValidateObjectKey checks the key is non-empty after trimming leading
// slashes and fits the metadata column. Empty, "." and ".." segments are
// rejected so that distinct keys always map to distinct locators.
func ValidateObjectKey(key string) error {
	trimmed := strings.TrimLeft(key, "/")
	if trimmed == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidObjectKey)
	}
	if len(key) > MaxObjectKeyLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidObjectKey, MaxObjectKeyLength)
	}
	for _, seg := range strings.Split(trimmed, "/") {
		switch seg {
		case "":
			return fmt.Errorf("%w: empty path segment in %q", ErrInvalidObjectKey, key)
		case ".", "..":
			return fmt.Errorf("%w: %q segment in %q", ErrInvalidObjectKey, seg, key)
		}
	}
	return nil
}
