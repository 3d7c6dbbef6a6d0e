package dto

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// PeriodRequest represents the common dashboard query parameters.
// Days of zero (or absent) means "all time" for metrics and "default
// window" for trends; ForceRefresh bypasses the cache. Start and End
// are optional explicit window boundaries in epoch milliseconds; when
// both are set they take precedence over Days.
type PeriodRequest struct {
	Days         int   `form:"days" binding:"omitempty,min=0,max=3650"`
	Start        int64 `form:"start" binding:"omitempty,min=0"`
	End          int64 `form:"end" binding:"omitempty,min=0"`
	ForceRefresh bool  `form:"force_refresh"`
}

// HasExplicitRange reports whether both window boundaries are present
// and ordered.
func (r PeriodRequest) HasExplicitRange() bool {
	return r.Start > 0 && r.End > r.Start
}

// LimitRequest represents a top-N list request. Zero means "use the
// server default"; the handler clamps the upper bound.
type LimitRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=0,max=100"`
}
