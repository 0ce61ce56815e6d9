package handlers

import (
	"net/http"

	"github.com/lunalash/studio/libs/httpx"
	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/slots"
)

type availableTimesResponse struct {
	Date     string   `json:"date"`
	Location string   `json:"location,omitempty"`
	Times    []string `json:"times"`
}

// AvailableTimes lists bookable start times, already filtered by the lead time.
func (h *Handler) AvailableTimes(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	location := r.URL.Query().Get("location")
	times, err := h.slots.OpenTimes(r.Context(), date, location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availableTimesResponse{Date: date, Location: location, Times: times})
}

func (h *Handler) AdminSlots(w http.ResponseWriter, r *http.Request) {
	list, err := h.slots.AdminList(r.Context(), r.PathValue("date"), r.URL.Query().Get("location"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var in slots.CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	slot, err := h.slots.CreateSlot(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, slot)
}

type batchResponse struct {
	Created int          `json:"created"`
	Slots   []model.Slot `json:"slots"`
}

func (h *Handler) CreateSlotBatch(w http.ResponseWriter, r *http.Request) {
	var in slots.BatchInput
	if !h.decode(w, r, &in) {
		return
	}
	created, err := h.slots.CreateBatch(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, batchResponse{Created: len(created), Slots: created})
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

func (h *Handler) SetSlotAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.IsAvailable == nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "validation_failed", Fields: map[string]string{"is_available": "is required"}})
		return
	}
	if err := h.slots.SetAvailability(r.Context(), r.PathValue("id"), *req.IsAvailable); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := h.slots.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteSlotsForDate(w http.ResponseWriter, r *http.Request) {
	n, err := h.slots.DeleteForDate(r.Context(), r.PathValue("date"), r.URL.Query().Get("location"), queryBool(r, "only_available", true))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
