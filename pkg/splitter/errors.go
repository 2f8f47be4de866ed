package splitter

import "errors"

// Pipeline stage errors. Every error produced inside the pipeline wraps one
// of these sentinels so callers can classify failures with errors.Is.
var (
	ErrSentenceSplit = errors.New("sentence split error")
	ErrMarker        = errors.New("marker error")
	ErrParse         = errors.New("parse error")
	ErrGap           = errors.New("gap error")
	ErrEnhancer      = errors.New("enhancer error")
)
