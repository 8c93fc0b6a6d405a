package httpapi

import (
	"net/http"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/services/directory"
	"github.com/campusmess/messhall/internal/app/services/identity"
)

type registerRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Role         string `json:"role" validate:"required,oneof=student mess_admin"`
	RollNumber   string `json:"rollNumber" validate:"max=50"`
	MessID       string `json:"messId" validate:"required_if=Role student"`
	FacilityName string `json:"facilityName" validate:"required_if=Role mess_admin,max=100"`
	FacilityType string `json:"facilityType" validate:"omitempty,oneof=college hostel"`
	MessName     string `json:"messName" validate:"required_if=Role mess_admin,max=100"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload registerRequest
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	session, err := h.app.Identity.Register(r.Context(), identity.Registration{
		Name:         payload.Name,
		Email:        payload.Email,
		Password:     payload.Password,
		Role:         user.Role(payload.Role),
		RollNumber:   payload.RollNumber,
		MessID:       payload.MessID,
		FacilityName: payload.FacilityName,
		FacilityType: facility.Type(payload.FacilityType),
		MessName:     payload.MessName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	session, err := h.app.Identity.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Identity.Me(r.Context(), caller(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
	}
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.app.Identity.ChangePassword(r.Context(), caller(r), payload.CurrentPassword, payload.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listFacilities is public so the sign-up form can offer messes to join.
func (h *handler) listFacilities(w http.ResponseWriter, r *http.Request) {
	facilities, err := h.app.Directory.ListFacilities(r.Context(), true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, facilities)
}

func (h *handler) getFacility(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "facilityId")
	f, err := h.app.Directory.GetFacility(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type messRequest struct {
	Name           string           `json:"name" validate:"required,max=100"`
	Description    string           `json:"description" validate:"max=500"`
	Capacity       int              `json:"capacity" validate:"gte=0"`
	OperatingHours []facility.Hours `json:"operatingHours"`
}

func (h *handler) addMess(w http.ResponseWriter, r *http.Request) {
	facilityID := pathVar(r, "facilityId")
	if err := directory.Authorize(caller(r), facilityID); err != nil {
		h.fail(w, r, err)
		return
	}
	var payload messRequest
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.app.Directory.AddMess(r.Context(), facilityID, directory.MessInput{
		Name:           payload.Name,
		Description:    payload.Description,
		Capacity:       payload.Capacity,
		OperatingHours: payload.OperatingHours,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handler) updateMess(w http.ResponseWriter, r *http.Request) {
	facilityID, messID := pathVar(r, "facilityId"), pathVar(r, "messId")
	if err := directory.AuthorizeMess(caller(r), facilityID, messID); err != nil {
		h.fail(w, r, err)
		return
	}
	var payload struct {
		Name           *string           `json:"name" validate:"omitempty,min=1,max=100"`
		Description    *string           `json:"description" validate:"omitempty,max=500"`
		Capacity       *int              `json:"capacity" validate:"omitempty,gte=0"`
		IsActive       *bool             `json:"isActive"`
		OperatingHours *[]facility.Hours `json:"operatingHours"`
	}
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.app.Directory.UpdateMess(r.Context(), facilityID, messID, facility.MessPatch{
		Name:           payload.Name,
		Description:    payload.Description,
		Capacity:       payload.Capacity,
		IsActive:       payload.IsActive,
		OperatingHours: payload.OperatingHours,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) deactivateMess(w http.ResponseWriter, r *http.Request) {
	facilityID, messID := pathVar(r, "facilityId"), pathVar(r, "messId")
	if err := directory.AuthorizeMess(caller(r), facilityID, messID); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.app.Directory.DeactivateMess(r.Context(), facilityID, messID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) messNameAvailable(w http.ResponseWriter, r *http.Request) {
	facilityID := pathVar(r, "facilityId")
	if err := directory.Authorize(caller(r), facilityID); err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	if q.Get("name") == "" {
		h.fail(w, r, core.RequiredError("name"))
		return
	}
	ok, err := h.app.Directory.IsMessNameUnique(r.Context(), facilityID, q.Get("name"), q.Get("exclude"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": ok})
}
