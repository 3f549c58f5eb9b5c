package httpresponse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apperrors "babelfish/internal/errors"
)

type Response[T any] struct {
	Status int `json:"Status"`
	Body   T   `json:"Body,omitempty"`
}

type ErrorResponse struct {
	ErrorDescription string `json:"ErrorDescription"`
	Code             string `json:"Code"`
}

const INTERNALERRORJSON = "{\"Status\": 500,\"Body\":{\"ErrorDescription\": \"Internal server error\",\"Code\":\"internal\"}}"

const MALFORMEDJSON_errorDesc = "json unmarshalling error"

func WriteResponseWithStatus(w http.ResponseWriter, status int, body any) {
	jsonByte, err := marshalStatusJson(status, body)
	if err != nil {
		WriteInternalErrorResponse(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(jsonByte)
}

func marshalStatusJson(status int, body any) ([]byte, error) {
	response := Response[any]{
		Status: status,
		Body:   body,
	}
	marshal, err := json.Marshal(response)
	if err != nil {
		return nil, err
	}
	return marshal, nil
}

func WriteInternalErrorResponse(w http.ResponseWriter) {
	// implementation similar to http.Error, only difference is the Content-type
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(500)
	_, _ = fmt.Fprintln(w, INTERNALERRORJSON)
}

// StatusFor maps an analysis error to its HTTP status.
func StatusFor(err error) int {
	switch apperrors.Code(err) {
	case "invalid_position", "illegal_move", "invalid_argument":
		return http.StatusBadRequest
	case "engine_unavailable":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError writes err in the response envelope. Internal errors are
// logged and their text is not sent.
func WriteError(w http.ResponseWriter, log *zap.SugaredLogger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorw("request failed", "error", err)
		WriteInternalErrorResponse(w)
		return
	}
	log.Debugw("request rejected", "status", status, "error", err)
	WriteResponseWithStatus(w, status, ErrorResponse{ErrorDescription: err.Error(), Code: apperrors.Code(err)})
}
