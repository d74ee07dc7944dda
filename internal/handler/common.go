package handler

import (
	"encoding/json"
	"net/http"

	"momo-payments/internal/errors"
)

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

type Error struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Details       string `json:"details,omitempty"`
	ProviderError string `json:"provider_error,omitempty"`
}

// errorWriter renders AppErrors. Internal error details leak driver and
// network messages, so they are only written outside production.
type errorWriter struct {
	exposeInternal bool
}

func writeJSON(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Success: true, Message: message, Data: data}
	json.NewEncoder(w).Encode(response)
}

func (ew errorWriter) writeError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}
	switch appErr.Code {
	case errors.ProviderError:
		errResponse.ProviderError = appErr.Details
	case errors.InternalError:
		if !ew.exposeInternal {
			errResponse.Details = ""
		}
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Success: false, Message: appErr.Message, Error: &errResponse})
}
