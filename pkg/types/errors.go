// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// Sentinel errors shared by the converter, fetcher, job manager and output
// writer. Callers wrap them with context using fmt.Errorf("...: %w").
var (
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrDownload          = errors.New("download failed")
	ErrNetwork           = errors.New("network error")
	ErrConversion        = errors.New("conversion error")
	ErrFileSystem        = errors.New("file system error")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrNoLocation        = errors.New("no save location selected")
	ErrNoInput           = errors.New("no input provided")
	ErrDestinationExists = errors.New("destination already exists")
	ErrNotFound          = errors.New("not found")
	ErrNotReady          = errors.New("job has no result")
)

// Error categories reported alongside job failures and API errors.
const (
	CategoryInvalidFileType   = "invalid_file_type"
	CategoryDownloadFailed    = "download_failed"
	CategoryConversionError   = "conversion_error"
	CategoryFileSystemError   = "filesystem_error"
	CategoryNetworkError      = "network_error"
	CategoryInvalidInput      = "invalid_input"
	CategoryDestinationExists = "destination_exists"
	CategoryNotFound          = "not_found"
	CategoryNotReady          = "not_ready"
	CategoryInternal          = "internal"
)

// ErrorCategory maps err to its category. Unknown errors are "internal".
func ErrorCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedType):
		return CategoryInvalidFileType
	case errors.Is(err, ErrNetwork):
		return CategoryNetworkError
	case errors.Is(err, ErrDownload):
		return CategoryDownloadFailed
	case errors.Is(err, ErrConversion):
		return CategoryConversionError
	case errors.Is(err, ErrDestinationExists):
		return CategoryDestinationExists
	case errors.Is(err, ErrFileSystem):
		return CategoryFileSystemError
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrNoLocation), errors.Is(err, ErrNoInput):
		return CategoryInvalidInput
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrNotReady):
		return CategoryNotReady
	default:
		return CategoryInternal
	}
}
