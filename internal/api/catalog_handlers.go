package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/pkg/httputil"
	"github.com/delsur/comandero/internal/service/catalog"
)

type uploadProductsRequest struct {
	Entries []catalog.ProductUpload `json:"entries"`
}

type uploadResponse struct {
	Version int `json:"version"`
	Entries int `json:"entries"`
}

// UploadProducts creates the next immutable product catalog version from
// already-extracted rows. Activation is a separate step.
func (h *Handlers) UploadProducts(w http.ResponseWriter, r *http.Request) {
	var req uploadProductsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	version, count, err := h.catalogs.CreateProducts(r.Context(), req.Entries)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, uploadResponse{Version: version, Entries: count})
}

type uploadRoutesRequest struct {
	Entries []string `json:"entries"`
}

// UploadRoutes creates the next immutable route catalog version.
func (h *Handlers) UploadRoutes(w http.ResponseWriter, r *http.Request) {
	var req uploadRoutesRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	version, count, err := h.catalogs.CreateRoutes(r.Context(), req.Entries)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, uploadResponse{Version: version, Entries: count})
}

func pathVersion(w http.ResponseWriter, r *http.Request) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || v < 1 {
		httputil.BadRequest(w, "version must be a positive integer")
		return 0, false
	}
	return v, true
}

// ActivateProducts flips the active product catalog version.
func (h *Handlers) ActivateProducts(w http.ResponseWriter, r *http.Request) {
	v, ok := pathVersion(w, r)
	if !ok {
		return
	}
	if err := h.catalogs.ActivateProducts(r.Context(), v, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true, "version": v})
}

// ActivateRoutes flips the active route catalog version.
func (h *Handlers) ActivateRoutes(w http.ResponseWriter, r *http.Request) {
	v, ok := pathVersion(w, r)
	if !ok {
		return
	}
	if err := h.catalogs.ActivateRoutes(r.Context(), v, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true, "version": v})
}

// ActiveCatalogs reports both active catalog versions and entry counts.
func (h *Handlers) ActiveCatalogs(w http.ResponseWriter, r *http.Request) {
	info, err := h.catalogs.Active(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, info)
}

type catalogVersionsResponse struct {
	Products []domain.ProductCatalog `json:"products"`
	Routes   []domain.RouteCatalog   `json:"routes"`
}

// CatalogVersions lists every uploaded version of both catalogs.
func (h *Handlers) CatalogVersions(w http.ResponseWriter, r *http.Request) {
	prods, routes, err := h.catalogs.Versions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if prods == nil {
		prods = []domain.ProductCatalog{}
	}
	if routes == nil {
		routes = []domain.RouteCatalog{}
	}
	httputil.OK(w, catalogVersionsResponse{Products: prods, Routes: routes})
}
