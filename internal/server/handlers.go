package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gorilla/schema"

	"github.com/Aman-CERP/mosaic/internal/assemble"
	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeXML         = "application/xml"
	contentTypeDescription = "application/opensearchdescription+xml"
)

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// fullTextParams are the query parameters of /full-text.
type fullTextParams struct {
	ID     string `schema:"id"`
	Column string `schema:"column"`
	Index  string `schema:"index"`
}

type fullTextResponse struct {
	ID       string `json:"id"`
	FullText string `json:"fullText"`
}

type indexInfoEntry struct {
	DocumentCount uint64   `json:"documentCount"`
	Languages     []string `json:"languages"`
}

type indexInfoResponse struct {
	Results []map[string]indexInfoEntry `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	ans, err := s.app.Search(ctx, r.URL.Query(), "json")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := s.app.Assembler.JSON(ans.Response, ans.Request)
	if err != nil {
		s.writeError(w, r, mosaicerrors.Wrap(mosaicerrors.ErrCodeInternal, err))
		return
	}
	writeBody(w, http.StatusOK, contentTypeJSON, body)
}

func (s *Server) handleSearchXML(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	ans, err := s.app.Search(ctx, r.URL.Query(), "xml")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := s.app.Assembler.Feed(ans.Response, ans.Request)
	if err != nil {
		s.writeError(w, r, mosaicerrors.Wrap(mosaicerrors.ErrCodeInternal, err))
		return
	}
	writeBody(w, http.StatusOK, contentTypeXML, body)
}

func (s *Server) handleFullText(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	var p fullTextParams
	if err := decoder.Decode(&p, r.URL.Query()); err != nil {
		s.writeError(w, r, mosaicerrors.ValidationError("The full-text parameters are invalid"))
		return
	}

	text, err := s.app.FullText(ctx, p.ID, p.Column, p.Index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fullTextResponse{ID: p.ID, FullText: text})
}

func (s *Server) handleIndexInfo(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	infos, err := s.app.IndexInfo(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := indexInfoResponse{Results: make([]map[string]indexInfoEntry, 0, len(infos))}
	for _, info := range infos {
		langs := info.Languages
		if langs == nil {
			langs = []string{}
		}
		resp.Results = append(resp.Results, map[string]indexInfoEntry{
			info.Name: {DocumentCount: info.DocumentCount, Languages: langs},
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOpenSearch(w http.ResponseWriter, r *http.Request) {
	body, err := assemble.Description(s.app.Config.Server.OpenSearchTemplateURL)
	if err != nil {
		s.writeError(w, r, mosaicerrors.Wrap(mosaicerrors.ErrCodeInternal, err))
		return
	}
	writeBody(w, http.StatusOK, contentTypeDescription, body)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Queries.Snapshot(20))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"indexes": len(s.app.Catalog.Names()),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeProblem(w, http.StatusNotFound, NotFoundMessage, "")
}

// writeError maps err to its status and error body. Server-side failures are
// logged; rejected requests are not.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mosaicerrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		fields := mosaicerrors.FormatForLog(err)
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		attrs := []any{
			slog.String("path", r.URL.Path),
			slog.String("request_id", w.Header().Get("X-Request-ID")),
		}
		for _, k := range keys {
			attrs = append(attrs, slog.Any(k, fields[k]))
		}
		s.logger.Error("request_failed", attrs...)
	}
	writeJSON(w, status, mosaicerrors.ToProblem(err))
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, mosaicerrors.Problem{Error: mosaicerrors.ProblemDetail{
		Status: status,
		Title:  title,
		Detail: detail,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":{"status":500,"title":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	writeBody(w, status, contentTypeJSON, body)
}

func writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
