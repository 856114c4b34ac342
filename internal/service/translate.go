package service

import (
	"bytes"
	"io"
	"net/http"
	"unicode/utf8"

	"golang.org/x/net/http/httpguts"

	"gemini-proxy-go/internal/model"
)

// outboundMethods maps every model.Method onto its net/http token.
var outboundMethods = [...]string{
	model.MethodGet:     http.MethodGet,
	model.MethodPost:    http.MethodPost,
	model.MethodPut:     http.MethodPut,
	model.MethodDelete:  http.MethodDelete,
	model.MethodHead:    http.MethodHead,
	model.MethodConnect: http.MethodConnect,
	model.MethodOptions: http.MethodOptions,
	model.MethodTrace:   http.MethodTrace,
	model.MethodPatch:   http.MethodPatch,
}

// TranslateMethod returns the outbound method for m. The mapping is total
// over valid methods.
func TranslateMethod(m model.Method) string {
	return outboundMethods[m]
}

// TranslateRequestHeaders rebuilds an inbound header set for the outbound
// request. Every value of every name is kept. A single invalid name or
// value rejects the whole set.
func TranslateRequestHeaders(src http.Header) (http.Header, error) {
	dst := make(http.Header, len(src))
	for name, values := range src {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, &model.HeaderTranslationError{Name: name, Reason: "invalid header name"}
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, &model.HeaderTranslationError{Name: name, Reason: "value contains control characters"}
			}
			if !utf8.ValidString(v) {
				return nil, &model.HeaderTranslationError{Name: name, Reason: "value is not valid UTF-8"}
			}
			dst[name] = append(dst[name], v)
		}
	}
	return dst, nil
}

// ReadBody drains and closes the inbound body. A nil body reads as empty.
func ReadBody(body io.ReadCloser) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	defer func() { _ = body.Close() }()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, &model.BodyReadError{Read: buf.Len(), Cause: err}
	}
	return buf.Bytes(), nil
}

// TranslateResponseHeaders copies upstream headers whose values are plain
// visible ASCII. Other values are dropped one by one; the number dropped is
// returned.
func TranslateResponseHeaders(src http.Header) (http.Header, int) {
	dst := make(http.Header, len(src))
	dropped := 0
	for name, values := range src {
		for _, v := range values {
			if !isVisibleASCII(v) {
				dropped++
				continue
			}
			dst[name] = append(dst[name], v)
		}
	}
	return dst, dropped
}

func isVisibleASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < ' ' && c != '\t') || c > '~' {
			return false
		}
	}
	return true
}
