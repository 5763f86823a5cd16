package dto

// ErrorResponse стандартный ответ с ошибкой.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// ListResponse список с параметрами страницы.
type ListResponse struct {
	Items  interface{} `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
