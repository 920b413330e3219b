// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/fieldops/fieldaudit/internal/core"
	"github.com/fieldops/fieldaudit/internal/i18n"
	"github.com/fieldops/fieldaudit/internal/logging"
)

// maxBodyBytes bounds request bodies. Photos arrive base64 encoded inside
// the JSON document.
const maxBodyBytes = 64 << 20

func translator(r *http.Request) i18n.Translator {
	return i18n.For(i18n.Match(r.Header.Get("Accept-Language")))
}

func translate(tr i18n.Translator, m core.Msg) string {
	if len(m.Data) == 0 {
		return tr.T(m.ID)
	}
	return tr.T(m.ID, m.Data)
}

// localize replaces messages anywhere in v with their translated text.
func localize(tr i18n.Translator, v any) any {
	switch t := v.(type) {
	case core.Msg:
		return translate(tr, t)
	case []core.Msg:
		out := make([]string, len(t))
		for i, m := range t {
			out[i] = translate(tr, m)
		}
		return out
	case core.Response:
		return localizeMap(tr, t)
	case map[string]any:
		return localizeMap(tr, t)
	default:
		return v
	}
}

func localizeMap(tr i18n.Translator, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = localize(tr, v)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debugf("could not write response: %v", err)
	}
}

// reply writes resp with status, or the error when err is set.
func reply(w http.ResponseWriter, r *http.Request, status int, resp core.Response, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, localize(translator(r), resp))
}

// writeError renders a *core.Error as {"error": ..., extra...}. Anything
// else is logged and reported as a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	tr := translator(r)
	if e, ok := core.AsError(err); ok {
		body := localizeMap(tr, e.Extra)
		body["error"] = translate(tr, e.Msg)
		writeJSON(w, e.Status, body)
		return
	}
	logging.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": tr.T("error.internal")})
}

func clientError(status int, id string) *core.Error {
	return &core.Error{Status: status, Msg: core.M(id)}
}

// decodeJSON reads a JSON object body. Numbers are kept as json.Number so
// counts survive unchanged.
func decodeJSON(r *http.Request) (core.Payload, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/json" {
		return nil, clientError(http.StatusUnsupportedMediaType, "error.request_not_json")
	}
	return decodeBody(r)
}

// decodeOptionalJSON is decodeJSON for endpoints where the body may be
// absent. A missing body yields an empty payload.
func decodeOptionalJSON(r *http.Request) (core.Payload, error) {
	if r.ContentLength == 0 && r.Header.Get("Content-Type") == "" {
		return core.Payload{}, nil
	}
	return decodeBody(r)
}

func decodeBody(r *http.Request) (core.Payload, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	var p core.Payload
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Payload{}, nil
		}
		return nil, clientError(http.StatusBadRequest, "error.invalid_json")
	}
	if p == nil {
		p = core.Payload{}
	}
	return p, nil
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return strings.TrimRight(s.publicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

func (s *Server) meta(r *http.Request) core.RequestMeta {
	return core.RequestMeta{
		BaseURL:       s.baseURL(r),
		RemoteAddr:    clientIP(r),
		UserAgent:     r.UserAgent(),
		Authorization: r.Header.Get("Authorization"),
	}
}
