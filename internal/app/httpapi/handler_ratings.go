package httpapi

import (
	"net/http"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/domain/stats"
	"github.com/campusmess/messhall/internal/app/services/feedback"
)

type submitRatingRequest struct {
	MenuItemID    string           `json:"menuItemId" validate:"required"`
	MealDate      string           `json:"mealDate" validate:"required,mealdate"`
	MealType      string           `json:"mealType" validate:"required,mealtype"`
	OverallRating int              `json:"overallRating" validate:"gte=0,lte=5"`
	Categories    stats.Categories `json:"categories"`
	Review        string           `json:"review"`
	Photos        []rating.Photo   `json:"photos"`
	Emoji         string           `json:"emoji" validate:"max=16"`
	IsAnonymous   bool             `json:"isAnonymous"`
}

func (h *handler) submitRating(w http.ResponseWriter, r *http.Request) {
	var payload submitRatingRequest
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	mt, _ := meal.ParseType(payload.MealType)
	created, err := h.app.Feedback.Submit(r.Context(), caller(r), feedback.SubmitInput{
		MenuItemID:    payload.MenuItemID,
		MealDate:      payload.MealDate,
		MealType:      mt,
		OverallRating: payload.OverallRating,
		Categories:    payload.Categories,
		Review:        payload.Review,
		Photos:        payload.Photos,
		Emoji:         payload.Emoji,
		IsAnonymous:   payload.IsAnonymous,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) myRatings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	verr := &core.ValidationError{}
	from, to := q.Get("from"), q.Get("to")
	if from != "" {
		if _, err := meal.ParseDate(from); err != nil {
			verr.Add("from", "must be a date in YYYY-MM-DD form")
		}
	}
	if to != "" {
		if _, err := meal.ParseDate(to); err != nil {
			verr.Add("to", "must be a date in YYYY-MM-DD form")
		}
	}
	if err := verr.OrNil(); err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.app.Feedback.ListMyRatings(r.Context(), caller(r), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getRating(w http.ResponseWriter, r *http.Request) {
	got, err := h.app.Feedback.Get(r.Context(), caller(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (h *handler) updateRating(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OverallRating *int              `json:"overallRating" validate:"omitempty,gte=1,lte=5"`
		Categories    *stats.Categories `json:"categories"`
		Review        *string           `json:"review"`
		Photos        *[]rating.Photo   `json:"photos"`
		Emoji         *string           `json:"emoji" validate:"omitempty,max=16"`
		IsAnonymous   *bool             `json:"isAnonymous"`
	}
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.app.Feedback.Update(r.Context(), caller(r), pathVar(r, "id"), feedback.UpdateInput{
		OverallRating: payload.OverallRating,
		Categories:    payload.Categories,
		Review:        payload.Review,
		Photos:        payload.Photos,
		Emoji:         payload.Emoji,
		IsAnonymous:   payload.IsAnonymous,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteRating(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Feedback.Delete(r.Context(), caller(r), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) voteRating(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Type string `json:"type" validate:"required,oneof=up down"`
	}
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.app.Feedback.Vote(r.Context(), caller(r), pathVar(r, "id"), rating.VoteType(payload.Type))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) itemRatings(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Feedback.ListItemRatings(r.Context(), caller(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) reconcileItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.app.Feedback.ReconcileItem(r.Context(), caller(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *handler) reconcileMenu(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Feedback.ReconcileMenu(r.Context(), caller(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
