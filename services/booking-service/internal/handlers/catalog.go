package handlers

import (
	"net/http"

	"github.com/lunalash/studio/libs/httpx"
	"github.com/lunalash/studio/services/booking-service/internal/catalog"
)

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if queryBool(r, "grouped", false) {
		groups, err := h.catalog.Grouped(r.Context(), location)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, groups)
		return
	}
	services, err := h.catalog.List(r.Context(), location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, services)
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, svc)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var in catalog.Input
	if !h.decode(w, r, &in) {
		return
	}
	svc, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, svc)
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var in catalog.Input
	if !h.decode(w, r, &in) {
		return
	}
	svc, err := h.catalog.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, svc)
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
