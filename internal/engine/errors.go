package engine

import "errors"

// ErrorCode classifies a failed extraction or a skipped media record.
// Codes cross the public boundary verbatim so the host can pick a remediation
// (sign-in link for AUTH_REQUIRED, AI-transcription fallback for NO_CAPTIONS).
type ErrorCode string

const (
	CodeAuthRequired     ErrorCode = "AUTH_REQUIRED"
	CodeNoCaptions       ErrorCode = "NO_CAPTIONS"
	CodeNetworkError     ErrorCode = "NETWORK_ERROR"
	CodeParseError       ErrorCode = "PARSE_ERROR"
	CodeNotAvailable     ErrorCode = "NOT_AVAILABLE"
	CodeInvalidVideo     ErrorCode = "INVALID_VIDEO"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeInvalidResponse  ErrorCode = "INVALID_RESPONSE"
	CodeMediaProcessing  ErrorCode = "MEDIA_PROCESSING"
	CodeMediaFailed      ErrorCode = "MEDIA_FAILED"
	CodeMediaPreliminary ErrorCode = "MEDIA_PRELIMINARY"
	CodeMediaHidden      ErrorCode = "MEDIA_HIDDEN"
)

// Sentinel errors used inside the engine. Provider code converts them to
// ErrorCode values at the boundary; they never escape to the host.
var (
	ErrAuthRequired    = errors.New("authentication required")
	ErrNoCaptions      = errors.New("no captions available")
	ErrInvalidResponse = errors.New("invalid response shape")
)

// ExtractionFailure builds a failed result. A nil/empty message falls back to
// the code itself so the host always has something to show.
func ExtractionFailure(code ErrorCode, msg string, aiAvailable bool) TranscriptExtractionResult {
	if msg == "" {
		msg = string(code)
	}
	return TranscriptExtractionResult{
		Error:                    msg,
		ErrorCode:                code,
		AITranscriptionAvailable: aiAvailable,
	}
}

// ExtractionSuccess wraps a parsed transcript.
func ExtractionSuccess(tr TranscriptResult) TranscriptExtractionResult {
	return TranscriptExtractionResult{Success: true, Transcript: &tr}
}

// CodeForFetchError maps a fetch-layer error to the public taxonomy.
func CodeForFetchError(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrAuthRequired):
		return CodeAuthRequired
	case errors.Is(err, ErrInvalidResponse):
		return CodeInvalidResponse
	case IsTimeoutError(err):
		return CodeTimeout
	default:
		return CodeNetworkError
	}
}
