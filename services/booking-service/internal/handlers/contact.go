package handlers

import (
	"net/http"

	"github.com/lunalash/studio/libs/httpx"
	"github.com/lunalash/studio/services/booking-service/internal/contact"
)

func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var in contact.Input
	if !h.decode(w, r, &in) {
		return
	}
	msg, err := h.contacts.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, msg)
}

func (h *Handler) Testimonials(w http.ResponseWriter, r *http.Request) {
	list, err := h.contacts.Testimonials(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) AdminContacts(w http.ResponseWriter, r *http.Request) {
	list, err := h.contacts.List(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var in contact.Input
	if !h.decode(w, r, &in) {
		return
	}
	msg, err := h.contacts.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, msg)
}

func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
