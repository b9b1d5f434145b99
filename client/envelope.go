package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

// Envelope holds the fields nodes put around every response. Response types
// may embed it to read them after a call.
type Envelope struct {
	Success       *bool  `json:"success,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
	NodeTimestamp *int64 `json:"nodeTimestamp,omitempty"`
}

// parseEnvelope reads the envelope fields when body is a JSON object.
func parseEnvelope(body []byte) (Envelope, bool) {
	var env Envelope
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, false
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, false
	}
	return env, true
}

// failure returns the application error carried by a response, if any.
func failure(statusCode int, env Envelope, hasEnv bool) error {
	msg := env.Error
	if msg == "" {
		msg = env.Message
	}

	if hasEnv && env.Success != nil && !*env.Success {
		if msg == "" {
			msg = "request was not successful"
		}
		return translateServerError(msg, statusCode)
	}

	if statusCode >= http.StatusBadRequest {
		if msg == "" {
			msg = strings.ToLower(http.StatusText(statusCode))
		}
		return translateServerError(msg, statusCode)
	}
	return nil
}
