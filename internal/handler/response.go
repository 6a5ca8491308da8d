package handler

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// ListResponse wraps paginated results with the total row count.
type ListResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total"`
}

func NewListResponse(data interface{}, total int64) *ListResponse {
	return &ListResponse{
		Status: "success",
		Data:   data,
		Total:  total,
	}
}
