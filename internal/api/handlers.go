// Package api exposes the annotation model over a loopback HTTP API and an
// MCP server. All mutating routes sit behind bearer auth; destructive
// deletes additionally require the caller to echo the exact record name.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/njagatron/PEPE-DOT/internal/export"
	"github.com/njagatron/PEPE-DOT/internal/geometry"
	"github.com/njagatron/PEPE-DOT/internal/render"
	"github.com/njagatron/PEPE-DOT/internal/workorder"
)

const maxRequestBodySize = 1 << 20       // 1MB
const maxDocumentBodySize = 64 << 20     // 64MB, plan PDFs with embedded scans
const maxPointBodySize = 16 << 20        // 16MB, photo payloads

type AppDeps struct {
	Service *workorder.Service
	Token   string
	Render  *render.Coordinator // optional; page changes skip rendering when nil
	Export  export.Options
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/workorders", handleListWorkOrders(deps))
		r.Post("/workorders", handleCreateWorkOrder(deps))
		r.Get("/active", handleActiveWorkOrder(deps))

		r.Route("/workorders/{name}", func(r chi.Router) {
			r.Get("/", handleLoadWorkOrder(deps))
			r.Patch("/", handleRenameWorkOrder(deps))
			r.Delete("/", handleDeleteWorkOrder(deps))

			r.Post("/documents", handleAddDocument(deps))
			r.Post("/documents/{index}/select", handleSelectDocument(deps))
			r.Patch("/documents/{index}", handleRenameDocument(deps))
			r.Delete("/documents/{index}", handleRemoveDocument(deps))
			r.Post("/page", handleChangePage(deps))
			r.Get("/raster", handleLatestRaster(deps))

			r.Get("/points", handleListPoints(deps))
			r.Post("/points", handleAddPoint(deps))
			r.Patch("/points/{index}", handleEditPoint(deps))
			r.Delete("/points/{index}", handleRemovePoint(deps))
			r.Get("/points/{index}/photo", handlePointPhoto(deps))
			r.Get("/points/export", handleExportPoints(deps))
		})
	})

	return r
}

// --- Views ---

type documentView struct {
	Index      int     `json:"index"`
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	PageCount  int     `json:"page_count"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
}

type stateView struct {
	Name                string         `json:"name"`
	Documents           []documentView `json:"documents"`
	ActiveDocumentIndex int            `json:"active_document_index"`
	ActivePage          int            `json:"active_page"`
	PointCount          int            `json:"point_count"`
}

func viewOf(name string, state workorder.State) stateView {
	docs := make([]documentView, len(state.Documents))
	for i, d := range state.Documents {
		docs[i] = documentView{
			Index:      i,
			ID:         d.ID,
			Name:       d.Name,
			PageCount:  d.PageCount,
			PageWidth:  d.PageWidth,
			PageHeight: d.PageHeight,
		}
	}
	_, activeIdx := state.ActiveDocument()
	return stateView{
		Name:                name,
		Documents:           docs,
		ActiveDocumentIndex: activeIdx,
		ActivePage:          state.ActivePage,
		PointCount:          len(state.Points),
	}
}

// pointView is a ledger entry without the photo payload; the photo has its
// own route.
type pointView struct {
	Index         int     `json:"index"`
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Comment       string  `json:"comment"`
	OriginalName  string  `json:"original_name"`
	CreatedAt     string  `json:"created_at"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Page          int     `json:"page"`
	DocumentIndex int     `json:"document_index"`
	DocumentName  string  `json:"document_name"`
	Source        string  `json:"source"`
	SessionID     string  `json:"session_id"`
}

func pointViewOf(rec workorder.PointRecord) pointView {
	return pointView{
		Index:         rec.Index,
		ID:            rec.ID,
		Name:          rec.Name,
		Comment:       rec.Comment,
		OriginalName:  rec.OriginalName,
		CreatedAt:     rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		X:             rec.X,
		Y:             rec.Y,
		Page:          rec.Page,
		DocumentIndex: rec.DocumentIndex,
		DocumentName:  rec.DocumentName,
		Source:        string(rec.Source),
		SessionID:     rec.SessionID,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// --- Work orders ---

func handleListWorkOrders(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := deps.Service.Store().List()
		if err != nil {
			domainError(w, err)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, names)
	}
}

func handleCreateWorkOrder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Service.Store().Create(req.Name); err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"name": req.Name, "status": "created"})
	}
}

func handleActiveWorkOrder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := deps.Service.Store().Active()
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"name": name})
	}
}

func handleLoadWorkOrder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		state, err := deps.Service.Store().Load(name)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, viewOf(name, state))
	}
}

func handleRenameWorkOrder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			NewName string `json:"new_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Service.Store().Rename(name, req.NewName); err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"name": req.NewName, "status": "renamed"})
	}
}

func handleDeleteWorkOrder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Confirm string `json:"confirm"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Confirm != name {
			httpError(w, http.StatusBadRequest, "confirmation_mismatch", "confirmation %q does not match work order name %q", req.Confirm, name)
			return
		}
		if err := deps.Service.Store().Delete(name); err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- Documents ---

func handleAddDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		var req struct {
			Name    string `json:"name"`
			Content []byte `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		state, err := deps.Service.AddDocument(name, req.Name, req.Content)
		if err != nil {
			domainError(w, err)
			return
		}
		requestRender(deps, state)
		writeJSON(w, viewOf(name, state))
	}
}

func indexParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "index"))
}

func handleSelectDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		idx, err := indexParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid index: %v", err)
			return
		}
		state, err := deps.Service.SelectDocument(name, idx)
		if err != nil {
			domainError(w, err)
			return
		}
		requestRender(deps, state)
		writeJSON(w, viewOf(name, state))
	}
}

func handleRenameDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		idx, err := indexParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid index: %v", err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			NewName string `json:"new_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		state, err := deps.Service.RenameDocument(name, idx, req.NewName)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, viewOf(name, state))
	}
}

func handleRemoveDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		idx, err := indexParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid index: %v", err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Confirm string `json:"confirm"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		state, err := deps.Service.Store().State(name)
		if err != nil {
			domainError(w, err)
			return
		}
		if idx < 0 || idx >= len(state.Documents) {
			httpError(w, http.StatusBadRequest, "index_out_of_range", "document %d of %d", idx, len(state.Documents))
			return
		}
		if req.Confirm != state.Documents[idx].Name {
			httpError(w, http.StatusBadRequest, "confirmation_mismatch", "confirmation %q does not match document name %q", req.Confirm, state.Documents[idx].Name)
			return
		}

		state, err = deps.Service.RemoveDocument(name, idx)
		if err != nil {
			domainError(w, err)
			return
		}
		requestRender(deps, state)
		writeJSON(w, viewOf(name, state))
	}
}

func handleChangePage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Direction int `json:"direction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Direction != 1 && req.Direction != -1 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "direction must be +1 or -1")
			return
		}
		state, err := deps.Service.ChangePage(name, req.Direction)
		if err != nil {
			domainError(w, err)
			return
		}
		requestRender(deps, state)
		writeJSON(w, viewOf(name, state))
	}
}

// requestRender kicks off an asynchronous render of the active page. The
// request outlives the HTTP call; the coordinator discards it if a newer
// page is asked for before it completes.
func requestRender(deps AppDeps, state workorder.State) {
	if deps.Render == nil {
		return
	}
	doc, _ := state.ActiveDocument()
	if doc == nil {
		return
	}
	deps.Render.Request(context.Background(), doc.ID, doc.Content, state.ActivePage)
}

func handleLatestRaster(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Render == nil {
			httpError(w, http.StatusNotImplemented, "unsupported", "no rasterizer configured")
			return
		}
		res, ok := deps.Render.Latest()
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no page rendered yet")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Document-ID", res.DocumentID)
		w.Header().Set("X-Page", strconv.Itoa(res.Page))
		w.Write(res.Image)
	}
}

// --- Points ---

func pointFilterFrom(r *http.Request) workorder.PointFilter {
	filter := workorder.PointFilter{DocumentIndex: -1}
	q := r.URL.Query()
	if s := q.Get("document"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			filter.DocumentIndex = v
		}
	}
	if s := q.Get("page"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			filter.Page = v
		}
	}
	if s := q.Get("all_sessions"); s != "" {
		if v, err := strconv.ParseBool(s); err == nil {
			filter.AllSessions = v
		}
	}
	return filter
}

func handleListPoints(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		records, err := deps.Service.Points(name, pointFilterFrom(r))
		if err != nil {
			domainError(w, err)
			return
		}
		views := make([]pointView, len(records))
		for i, rec := range records {
			views[i] = pointViewOf(rec)
		}
		writeJSON(w, views)
	}
}

func handleAddPoint(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		r.Body = http.MaxBytesReader(w, r.Body, maxPointBodySize)
		var req struct {
			BaseName     string  `json:"base_name"`
			Comment      string  `json:"comment"`
			Image        []byte  `json:"image"`
			OriginalName string  `json:"original_name"`
			Source       string  `json:"source"`
			X            float64 `json:"x"`
			Y            float64 `json:"y"`
			StageWidth   float64 `json:"stage_width"`
			StageHeight  float64 `json:"stage_height"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		state, err := deps.Service.AddPoint(name, workorder.PointInput{
			BaseName:     req.BaseName,
			Comment:      req.Comment,
			Image:        req.Image,
			OriginalName: req.OriginalName,
			Source:       workorder.CaptureSource(req.Source),
			X:            req.X,
			Y:            req.Y,
			Stage:        geometry.Size{Width: req.StageWidth, Height: req.StageHeight},
		})
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, viewOf(name, state))
	}
}

func handleEditPoint(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		idx, err := indexParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid index: %v", err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Name    *string `json:"name"`
			Comment *string `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		state, err := deps.Service.EditPoint(name, idx, req.Name, req.Comment)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, viewOf(name, state))
	}
}

func handleRemovePoint(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		idx, err := indexParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid index: %v", err)
			return
		}
		state, err := deps.Service.RemovePoint(name, idx)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, viewOf(name, state))
	}
}

func handlePointPhoto(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		idx, err := indexParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid index: %v", err)
			return
		}
		state, err := deps.Service.Store().State(name)
		if err != nil {
			domainError(w, err)
			return
		}
		if idx < 0 || idx >= len(state.Points) {
			httpError(w, http.StatusBadRequest, "index_out_of_range", "point %d of %d", idx, len(state.Points))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(state.Points[idx].Image)
	}
}

func handleExportPoints(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		records, err := deps.Service.Points(name, pointFilterFrom(r))
		if err != nil {
			domainError(w, err)
			return
		}

		opts := deps.Export
		if s := r.URL.Query().Get("detailed"); s != "" {
			if v, err := strconv.ParseBool(s); err == nil {
				opts.Detailed = v
			}
		}

		f, err := export.PointList(name, records, opts)
		if err != nil {
			domainError(w, err)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"-points.xlsx"))
		if err := f.Write(w); err != nil {
			// Headers already sent; nothing sensible left to report.
			return
		}
	}
}

