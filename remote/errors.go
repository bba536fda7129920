package remote

import (
	"encoding/json"
	"net/http"

	"github.com/teranos/jawala/errors"
)

// Postgres error codes the client reacts to
const (
	pgUniqueViolation       = "23505"
	pgInsufficientPrivilege = "42501"
)

// apiError is the error body returned by the REST and auth endpoints
type apiError struct {
	Code             string `json:"code"`
	Message          string `json:"message"`
	Details          string `json:"details"`
	Hint             string `json:"hint"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (e apiError) text() string {
	for _, s := range []string{e.Message, e.ErrorDescription, e.Msg, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// statusError maps a non-2xx response onto the errors sentinels
func statusError(req request, status int, body []byte) error {
	var api apiError
	_ = json.Unmarshal(body, &api)

	msg := api.text()
	if msg == "" {
		msg = http.StatusText(status)
	}

	err := errors.Newf("%s %s: %d %s", req.method, req.path, status, msg)
	if api.Code != "" {
		err = errors.WithDetailf(err, "code: %s", api.Code)
	}
	if api.Details != "" {
		err = errors.WithDetail(err, api.Details)
	}

	switch {
	case api.Code == pgUniqueViolation || status == http.StatusConflict:
		return errors.Mark(err, errors.ErrConflict)
	case api.Code == pgInsufficientPrivilege || status == http.StatusForbidden:
		return errors.Mark(err, errors.ErrForbidden)
	case status == http.StatusUnauthorized:
		return errors.Mark(err, errors.ErrUnauthorized)
	case status == http.StatusNotFound:
		return errors.Mark(err, errors.ErrNotFound)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return errors.Mark(err, errors.ErrTimeout)
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.Mark(err, errors.ErrServiceUnavailable)
	case status >= 400:
		return errors.Mark(err, errors.ErrInvalidRequest)
	}
	return err
}
