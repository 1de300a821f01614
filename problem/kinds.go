package problem

import "net/http"

// ParamError is one entry of an InvalidRequestErrors aggregation:
// {type, location, param, message} per §4.6.
type ParamError struct {
	Type     string
	Location string // path | query | header | cookie | body | form
	Param    string
	Message  string
}

// InvalidRequestErrors aggregates every failed parameter in one request
// so validation never short-circuits (§4.2, §8 completeness property).
type InvalidRequestErrors struct {
	Errors []ParamError
}

func (e *InvalidRequestErrors) Error() string {
	if len(e.Errors) == 0 {
		return "invalid request"
	}
	msg := e.Errors[0].Message
	if len(e.Errors) > 1 {
		msg += " (and more)"
	}
	return msg
}

func (e *InvalidRequestErrors) StatusCode() int { return http.StatusUnprocessableEntity }

// Add appends a parameter failure and returns e for chaining.
func (e *InvalidRequestErrors) Add(kind, location, param, message string) *InvalidRequestErrors {
	e.Errors = append(e.Errors, ParamError{Type: kind, Location: location, Param: param, Message: message})
	return e
}

// ToDetail renders the aggregation as a single problem document whose
// "errors" member lists one entry per failed parameter.
func (e *InvalidRequestErrors) ToDetail(instance string) *Detail {
	entries := make([]map[string]string, len(e.Errors))
	for i, pe := range e.Errors {
		entries[i] = map[string]string{
			"type": pe.Type, "location": pe.Location, "param": pe.Param, "message": pe.Message,
		}
	}
	return &Detail{
		Type:     "invalid-request-errors",
		Title:    "Request validation failed",
		Status:   http.StatusUnprocessableEntity,
		Instance: instance,
		Extra:    map[string]any{"errors": entries},
	}
}

// The constructors below produce the taxonomy's canonical instances
// (§7). Each sets TypeName to its own kebab-derived name so callers
// needn't repeat it, and can still override via WithMember/WithHeader
// or by mutating TitleText/DetailMsg directly.

func MissingRequestParam(location, param string) *HTTPException {
	return New(http.StatusUnprocessableEntity, "missing-request-param", "Missing request parameter",
		location+"."+param+" is required").WithMember("location", location).WithMember("param", param)
}

func InvalidParamValue(location, param, reason string) *HTTPException {
	return New(http.StatusUnprocessableEntity, "invalid-param-value", "Invalid parameter value",
		location+"."+param+": "+reason).WithMember("location", location).WithMember("param", param)
}

func InvalidJSONReceived(detail string) *HTTPException {
	return New(http.StatusUnprocessableEntity, "invalid-json-received", "Invalid JSON received", detail)
}

func InvalidFormError(detail string) *HTTPException {
	return New(http.StatusUnprocessableEntity, "invalid-form-error", "Invalid form data", detail)
}

func UnsupportedMediaType(detail string) *HTTPException {
	return New(http.StatusUnsupportedMediaType, "unsupported-media-type", "Unsupported media type", detail)
}

func PayloadTooLarge(detail string) *HTTPException {
	return New(http.StatusRequestEntityTooLarge, "payload-too-large", "Payload too large", detail)
}

func NotFound(detail string) *HTTPException {
	return New(http.StatusNotFound, "not-found", "Not Found", detail)
}

func MethodNotAllowed(allow []string) *HTTPException {
	e := New(http.StatusMethodNotAllowed, "method-not-allowed", "Method Not Allowed", "")
	for _, m := range allow {
		e.WithHeader("Allow", m)
	}
	return e
}

func NotAcceptable(detail string) *HTTPException {
	return New(http.StatusNotAcceptable, "not-acceptable", "Not Acceptable", detail)
}

func Unauthorized(detail, wwwAuthenticate string) *HTTPException {
	e := New(http.StatusUnauthorized, "unauthorized", "Unauthorized", detail)
	if wwwAuthenticate != "" {
		e.WithHeader("WWW-Authenticate", wwwAuthenticate)
	}
	return e
}

func InvalidToken(detail string) *HTTPException {
	return New(http.StatusUnauthorized, "invalid-token", "Invalid token", detail)
}

func Forbidden(detail string) *HTTPException {
	return New(http.StatusForbidden, "forbidden", "Forbidden", detail)
}

func Conflict(detail string) *HTTPException {
	return New(http.StatusConflict, "conflict", "Conflict", detail)
}

func Gone(detail string) *HTTPException {
	return New(http.StatusGone, "gone", "Gone", detail)
}

func UnprocessableEntity(detail string) *HTTPException {
	return New(http.StatusUnprocessableEntity, "unprocessable-entity", "Unprocessable Entity", detail)
}

func Timeout(detail string) *HTTPException {
	return New(http.StatusGatewayTimeout, "timeout", "Timeout", detail)
}

func TooManyRequests(detail, retryAfter string) *HTTPException {
	e := New(http.StatusTooManyRequests, "too-many-requests", "Too Many Requests", detail)
	if retryAfter != "" {
		e.WithHeader("Retry-After", retryAfter)
	}
	return e
}

func Internal(detail string) *HTTPException {
	return New(http.StatusInternalServerError, "internal", "Internal Server Error", detail)
}

func UnserializableResponse(detail string) *HTTPException {
	return New(http.StatusInternalServerError, "unserializable-response", "Unserializable response", detail)
}

func NotImplemented(detail string) *HTTPException {
	return New(http.StatusNotImplemented, "not-implemented", "Not Implemented", detail)
}
