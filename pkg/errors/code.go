package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 20000-20999: Catalog & Discovery errors
// 21000-21999: Process & Compile errors
// 22000-22999: Report & Result sink errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Storage backends (10100-10299)
	DatabaseError  ErrorCode = 10100
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidFormat    ErrorCode = 10301

	// ========== Catalog & Discovery Errors (20000-20999) ==========

	// Test catalog (20000-20099)
	CatalogLoadFailed ErrorCode = 20000
	CatalogInvalid    ErrorCode = 20001
	SuiteNotFound     ErrorCode = 20002

	// Submissions (20100-20199)
	DiscoveryFailed        ErrorCode = 20100
	SubmissionNameInvalid  ErrorCode = 20101
	ArchiveExtractFailed   ErrorCode = 20102
	WorkspaceCleanupFailed ErrorCode = 20103

	// ========== Process & Compile Errors (21000-21999) ==========

	// Process runner (21000-21099)
	ProcessLaunchFailed ErrorCode = 21000
	ProcessIOFailed     ErrorCode = 21001

	// Compiler (21100-21199)
	CompileRejected      ErrorCode = 21100
	SourceRewriteFailed  ErrorCode = 21101
	CompileTemplateError ErrorCode = 21102

	// ========== Report & Result Sink Errors (22000-22999) ==========

	ReportRenderFailed  ErrorCode = 22000
	ReportUploadFailed  ErrorCode = 22001
	ResultPublishFailed ErrorCode = 22100
	ResultStoreFailed   ErrorCode = 22101
)

var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Operation timeout",

	DatabaseError:  "Database operation failed",
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	ValidationFailed: "Validation failed",
	InvalidFormat:    "Invalid format",

	CatalogLoadFailed: "Failed to load test catalog",
	CatalogInvalid:    "Invalid test catalog file",
	SuiteNotFound:     "Test suite not found",

	DiscoveryFailed:        "Failed to discover submissions",
	SubmissionNameInvalid:  "Submission directory name does not match <homework>.<faculty>",
	ArchiveExtractFailed:   "Unable to extract archive",
	WorkspaceCleanupFailed: "Failed to clean workspace",

	ProcessLaunchFailed: "Failed to launch process",
	ProcessIOFailed:     "Process stream I/O failed",

	CompileRejected:      "Compilation failed",
	SourceRewriteFailed:  "Failed to rewrite submission source",
	CompileTemplateError: "Invalid compile command template",

	ReportRenderFailed:  "Failed to render report",
	ReportUploadFailed:  "Failed to upload report",
	ResultPublishFailed: "Failed to publish results",
	ResultStoreFailed:   "Failed to store results",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == SuiteNotFound, c == CacheMiss:
		return 404
	case c == InvalidParams, c >= 10300 && c < 10400:
		return 400
	case c == ServiceUnavailable:
		return 503
	case c == Timeout:
		return 504
	default:
		return 500
	}
}
