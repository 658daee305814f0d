package httpapi

import (
	"errors"
	"net/http"
)

//ErrorResponse represents an HTTP error
type ErrorResponse struct {
	Code   int    `json:"code"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

//handleError returns a handlerResponse response for the given code
func handleError(code int, err error) *handlerResponse {
	return &handlerResponse{Code: code, Body: &ErrorResponse{Code: code, Error: http.StatusText(code)}, Err: err}
}

//handleDetailError is handleError with err shown to the client
func handleDetailError(code int, err error) *handlerResponse {
	return &handlerResponse{Code: code, Body: &ErrorResponse{Code: code, Error: http.StatusText(code), Detail: err.Error()}, Err: err}
}

//notFoundHandler returns a 404 handlerResponse
func notFoundHandler(w http.ResponseWriter, r *http.Request) *handlerResponse {
	return handleError(http.StatusNotFound, errors.New("Could not find handler"))
}

//decodeBody decodes the JSON request body into v, returning a 400 handlerResponse on failure
func decodeBody(r *http.Request, v interface{}) *handlerResponse {
	if err := jsonDecode(r, v); err != nil {
		return handleError(http.StatusBadRequest, err)
	}
	return nil
}
