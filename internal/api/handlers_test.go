package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/njagatron/PEPE-DOT/internal/render"
	"github.com/njagatron/PEPE-DOT/internal/storage"
	"github.com/njagatron/PEPE-DOT/internal/workorder"
)

const testToken = "test-token-12345"

func setupAppHandler(t *testing.T, token string) (http.Handler, *workorder.Service) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := workorder.NewService(workorder.NewStore(db), "session-test")

	handler := NewAppHandler(AppDeps{
		Service: svc,
		Token:   token,
	})
	return handler, svc
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// buildPDF assembles a minimal well-formed PDF so upload requests exercise
// the real decode path.
func buildPDF(pageCount int, mediaBox string) []byte {
	var b strings.Builder
	offsets := []int{0}

	writeObj := func(body string) {
		offsets = append(offsets, b.Len())
		b.WriteString(body)
	}

	b.WriteString("%PDF-1.4\n")
	writeObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, pageCount)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	writeObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), pageCount))

	for i := 0; i < pageCount; i++ {
		box := ""
		if mediaBox != "" {
			box = " /MediaBox " + mediaBox
		}
		writeObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R%s >>\nendobj\n", i+3, box))
	}

	xrefPos := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(offsets))
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets[1:] {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets), xrefPos)

	return []byte(b.String())
}

func createOrder(t *testing.T, h http.Handler, name string) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/workorders", fmt.Sprintf(`{"name":%q}`, name), testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("create %q: status = %d, body = %s", name, rr.Code, rr.Body.String())
	}
}

func addDocument(t *testing.T, h http.Handler, order, docName string, pages int) stateView {
	t.Helper()
	content := base64.StdEncoding.EncodeToString(buildPDF(pages, "[0 0 1200 800]"))
	body := fmt.Sprintf(`{"name":%q,"content":%q}`, docName, content)
	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/workorders/"+order+"/documents", body, testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("add document: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var view stateView
	json.NewDecoder(rr.Body).Decode(&view)
	return view
}

func addPoint(t *testing.T, h http.Handler, order, base string) {
	t.Helper()
	img := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	body := fmt.Sprintf(`{"base_name":%q,"image":%q,"x":100,"y":50}`, base, img)
	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/workorders/"+order+"/points", body, testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("add point: status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestHealth_NoAuth(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestWorkOrders_RequireAuth(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	// No Authorization header at all.
	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/workorders", "", "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rr.Body.String(), "missing bearer token") {
		t.Errorf("body = %s, want missing-token message", rr.Body.String())
	}

	// Well-formed header, wrong token.
	rr = httptest.NewRecorder()
	req = authReq(http.MethodGet, "/workorders", "", "wrong-token")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rr.Body.String(), "invalid bearer token") {
		t.Errorf("body = %s, want invalid-token message", rr.Body.String())
	}
}

func TestCreateAndListWorkOrders(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	createOrder(t, h, "RN-100")
	createOrder(t, h, "RN-200")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/workorders", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var names []string
	json.NewDecoder(rr.Body).Decode(&names)
	if len(names) != 2 || names[0] != "RN-100" || names[1] != "RN-200" {
		t.Errorf("names = %v, want [RN-100 RN-200]", names)
	}
}

func TestCreateWorkOrder_Duplicate(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/workorders", `{"name":"RN-100"}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusConflict)
	}
	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Error.Type != "duplicate_name" {
		t.Errorf("error type = %q, want %q", resp.Error.Type, "duplicate_name")
	}
}

func TestLoadWorkOrder_SetsActive(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/workorders/RN-100", "", testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("load: status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = authReq(http.MethodGet, "/active", "", testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("active: status = %d", rr.Code)
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["name"] != "RN-100" {
		t.Errorf("active = %q, want %q", resp["name"], "RN-100")
	}
}

func TestLoadWorkOrder_NotFound(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/workorders/nonexistent", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestDeleteWorkOrder_ConfirmationMismatch(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodDelete, "/workorders/RN-100", `{"confirm":"RN-1OO"}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	// Record must survive a mismatched confirmation.
	rr = httptest.NewRecorder()
	req = authReq(http.MethodGet, "/workorders/RN-100", "", testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("order gone after failed confirmation: status = %d", rr.Code)
	}
}

func TestDeleteWorkOrder_Confirmed(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodDelete, "/workorders/RN-100", `{"confirm":"RN-100"}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = authReq(http.MethodGet, "/workorders", "", testToken)
	h.ServeHTTP(rr, req)
	var names []string
	json.NewDecoder(rr.Body).Decode(&names)
	if len(names) != 0 {
		t.Errorf("names = %v, want empty", names)
	}
}

func TestRenameWorkOrder(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPatch, "/workorders/RN-100", `{"new_name":"RN-101"}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = authReq(http.MethodGet, "/workorders/RN-101", "", testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("renamed order not loadable: status = %d", rr.Code)
	}
}

func TestAddDocument(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	view := addDocument(t, h, "RN-100", "ground-floor.pdf", 3)

	if len(view.Documents) != 1 {
		t.Fatalf("got %d documents, want 1", len(view.Documents))
	}
	if view.Documents[0].PageCount != 3 {
		t.Errorf("PageCount = %d, want 3", view.Documents[0].PageCount)
	}
	if view.ActiveDocumentIndex != 0 {
		t.Errorf("ActiveDocumentIndex = %d, want 0", view.ActiveDocumentIndex)
	}
	if view.ActivePage != 1 {
		t.Errorf("ActivePage = %d, want 1", view.ActivePage)
	}
}

func TestAddDocument_BadContent(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	content := base64.StdEncoding.EncodeToString([]byte("not a pdf"))
	body := fmt.Sprintf(`{"name":"plan.pdf","content":%q}`, content)
	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/workorders/RN-100/documents", body, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}
}

func TestSelectDocument_OutOfRange(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")
	addDocument(t, h, "RN-100", "a.pdf", 1)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/workorders/RN-100/documents/5/select", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRemoveDocument_Confirmed(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")
	addDocument(t, h, "RN-100", "a.pdf", 1)
	addDocument(t, h, "RN-100", "b.pdf", 1)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodDelete, "/workorders/RN-100/documents/0", `{"confirm":"a.pdf"}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var view stateView
	json.NewDecoder(rr.Body).Decode(&view)
	if len(view.Documents) != 1 || view.Documents[0].Name != "b.pdf" {
		t.Errorf("documents = %+v, want only b.pdf", view.Documents)
	}
}

func TestRemoveDocument_WrongConfirmation(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")
	addDocument(t, h, "RN-100", "a.pdf", 1)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodDelete, "/workorders/RN-100/documents/0", `{"confirm":"b.pdf"}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestChangePage(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")
	addDocument(t, h, "RN-100", "a.pdf", 3)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/workorders/RN-100/page", `{"direction":1}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var view stateView
	json.NewDecoder(rr.Body).Decode(&view)
	if view.ActivePage != 2 {
		t.Errorf("ActivePage = %d, want 2", view.ActivePage)
	}
}

func TestChangePage_BadDirection(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/workorders/RN-100/page", `{"direction":3}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAddAndListPoints(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")
	addDocument(t, h, "RN-100", "a.pdf", 1)
	addPoint(t, h, "RN-100", "T")
	addPoint(t, h, "RN-100", "T")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/workorders/RN-100/points", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var views []pointView
	json.NewDecoder(rr.Body).Decode(&views)
	if len(views) != 2 {
		t.Fatalf("got %d points, want 2", len(views))
	}
	if views[0].Index != 0 || views[1].Index != 1 {
		t.Errorf("indexes = %d,%d, want 0,1", views[0].Index, views[1].Index)
	}
	if views[0].DocumentName != "a.pdf" {
		t.Errorf("DocumentName = %q, want %q", views[0].DocumentName, "a.pdf")
	}
	if !strings.HasPrefix(views[0].Name, "T") {
		t.Errorf("Name = %q, want T-date prefix", views[0].Name)
	}
}

func TestAddPoint_NoDocument(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	img := base64.StdEncoding.EncodeToString([]byte("jpeg"))
	body := fmt.Sprintf(`{"base_name":"T","image":%q,"x":1,"y":1}`, img)
	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/workorders/RN-100/points", body, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestEditPoint(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")
	addDocument(t, h, "RN-100", "a.pdf", 1)
	addPoint(t, h, "RN-100", "T")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPatch, "/workorders/RN-100/points/0", `{"comment":"cracked tile"}`, testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = authReq(http.MethodGet, "/workorders/RN-100/points", "", testToken)
	h.ServeHTTP(rr, req)
	var views []pointView
	json.NewDecoder(rr.Body).Decode(&views)
	if len(views) != 1 || views[0].Comment != "cracked tile" {
		t.Errorf("points = %+v, want one with comment %q", views, "cracked tile")
	}
}

func TestRemovePoint_OutOfRange(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodDelete, "/workorders/RN-100/points/0", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestPointPhoto(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")
	addDocument(t, h, "RN-100", "a.pdf", 1)
	addPoint(t, h, "RN-100", "T")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/workorders/RN-100/points/0/photo", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.String() != "jpeg-bytes" {
		t.Errorf("photo = %q, want %q", rr.Body.String(), "jpeg-bytes")
	}
}

func TestExportPoints(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)
	createOrder(t, h, "RN-100")
	addDocument(t, h, "RN-100", "a.pdf", 1)
	addPoint(t, h, "RN-100", "T")

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/workorders/RN-100/points/export", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q, want xlsx", ct)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "RN-100-points.xlsx") {
		t.Errorf("Content-Disposition = %q, want attachment filename", rr.Header().Get("Content-Disposition"))
	}
	if rr.Body.Len() == 0 {
		t.Error("empty export body")
	}
}

type staticRasterizer struct{}

func (staticRasterizer) RenderPage(_ context.Context, _ []byte, page int, _ float64) ([]byte, error) {
	return []byte(fmt.Sprintf("raster-page-%d", page)), nil
}

func TestLatestRaster(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := workorder.NewService(workorder.NewStore(db), "session-test")
	coord := render.NewCoordinator(staticRasterizer{}, 1.5)
	h := NewAppHandler(AppDeps{Service: svc, Token: testToken, Render: coord})

	createOrder(t, h, "RN-100")
	addDocument(t, h, "RN-100", "a.pdf", 2)

	// The add-document handler kicked off an async render of page 1; wait
	// for a result to land before reading it back.
	doc, _ := mustState(t, svc, "RN-100")
	<-coord.Request(context.Background(), doc.ID, doc.Content, 2)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/workorders/RN-100/raster", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Page") != "2" {
		t.Errorf("X-Page = %q, want %q", rr.Header().Get("X-Page"), "2")
	}
	if rr.Body.String() != "raster-page-2" {
		t.Errorf("raster = %q, want %q", rr.Body.String(), "raster-page-2")
	}
}

func TestLatestRaster_NoneYet(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := workorder.NewService(workorder.NewStore(db), "session-test")
	coord := render.NewCoordinator(staticRasterizer{}, 1.5)
	h := NewAppHandler(AppDeps{Service: svc, Token: testToken, Render: coord})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/workorders/RN-100/raster", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func mustState(t *testing.T, svc *workorder.Service, order string) (*workorder.Document, int) {
	t.Helper()
	state, err := svc.Store().State(order)
	if err != nil {
		t.Fatalf("State(%q) failed: %v", order, err)
	}
	doc, idx := state.ActiveDocument()
	if doc == nil {
		t.Fatalf("no active document in %q", order)
	}
	return doc, idx
}
