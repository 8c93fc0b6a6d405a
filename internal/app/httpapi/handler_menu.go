package httpapi

import (
	"net/http"
	"strings"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/services/catalog"
	"github.com/campusmess/messhall/internal/app/services/scheduling"
)

type itemRequest struct {
	Name        string             `json:"name" validate:"required,max=100"`
	Description string             `json:"description" validate:"max=500"`
	Category    string             `json:"category" validate:"required"`
	IsVeg       bool               `json:"isVeg"`
	Allergens   []string           `json:"allergens" validate:"max=20,dive,max=50"`
	Nutrition   menuitem.Nutrition `json:"nutrition"`
	Image       *menuitem.Image    `json:"image"`
}

func (h *handler) createItem(w http.ResponseWriter, r *http.Request) {
	var payload itemRequest
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	it, err := h.app.Catalog.Create(r.Context(), caller(r), catalog.ItemInput{
		Name:        payload.Name,
		Description: payload.Description,
		Category:    menuitem.Category(payload.Category),
		IsVeg:       payload.IsVeg,
		Allergens:   payload.Allergens,
		Nutrition:   payload.Nutrition,
		Image:       payload.Image,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *handler) listItems(w http.ResponseWriter, r *http.Request) {
	vegOnly, err := queryBool(r, "vegOnly")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	includeInactive, err := queryBool(r, "includeInactive")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.app.Catalog.List(r.Context(), caller(r), menuitem.Filter{
		Category:        menuitem.Category(r.URL.Query().Get("category")),
		VegOnly:         vegOnly,
		IncludeInactive: includeInactive,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.app.Catalog.Get(r.Context(), caller(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name        *string             `json:"name" validate:"omitempty,min=1,max=100"`
		Description *string             `json:"description" validate:"omitempty,max=500"`
		Category    *string             `json:"category"`
		IsVeg       *bool               `json:"isVeg"`
		Allergens   *[]string           `json:"allergens"`
		Nutrition   *menuitem.Nutrition `json:"nutrition"`
		Image       *menuitem.Image     `json:"image"`
	}
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	patch := menuitem.Patch{
		Name:        payload.Name,
		Description: payload.Description,
		IsVeg:       payload.IsVeg,
		Allergens:   payload.Allergens,
		Nutrition:   payload.Nutrition,
		Image:       payload.Image,
	}
	if payload.Category != nil {
		c := menuitem.Category(*payload.Category)
		patch.Category = &c
	}
	it, err := h.app.Catalog.Update(r.Context(), caller(r), pathVar(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.Delete(r.Context(), caller(r), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type entryRequest struct {
	MenuItemID      string  `json:"menuItemId" validate:"required"`
	PlannedQuantity int     `json:"plannedQuantity" validate:"gte=0"`
	CostPerServing  float64 `json:"costPerServing" validate:"gte=0"`
}

func (e entryRequest) input() scheduling.EntryInput {
	return scheduling.EntryInput{MenuItemID: e.MenuItemID, PlannedQuantity: e.PlannedQuantity, CostPerServing: e.CostPerServing}
}

func (h *handler) createMenu(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Date             string         `json:"date" validate:"required,mealdate"`
		MealType         string         `json:"mealType" validate:"required,mealtype"`
		Items            []entryRequest `json:"items" validate:"dive"`
		ExpectedStudents int            `json:"expectedStudents" validate:"gte=0"`
		Notes            string         `json:"notes" validate:"max=1000"`
	}
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	mt, _ := meal.ParseType(payload.MealType)
	in := scheduling.MenuInput{
		Date:             payload.Date,
		MealType:         mt,
		ExpectedStudents: payload.ExpectedStudents,
		Notes:            payload.Notes,
	}
	for _, e := range payload.Items {
		in.Items = append(in.Items, e.input())
	}
	m, err := h.app.Scheduling.Create(r.Context(), caller(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handler) listMenus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := dailymenu.Filter{}
	verr := &core.ValidationError{}
	if raw := q.Get("from"); raw != "" {
		d, err := meal.ParseDate(raw)
		if err != nil {
			verr.Add("from", "must be a date in YYYY-MM-DD form")
		}
		filter.From = d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := meal.ParseDate(raw)
		if err != nil {
			verr.Add("to", "must be a date in YYYY-MM-DD form")
		}
		filter.To = d
	}
	if raw := q.Get("mealType"); raw != "" {
		mt, err := meal.ParseType(raw)
		if err != nil {
			verr.Add("mealType", "must be breakfast, lunch or dinner")
		}
		filter.MealType = mt
	}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := dailymenu.Status(strings.TrimSpace(part))
			if !st.Valid() {
				verr.Add("status", "is not a known menu status")
				break
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if err := verr.OrNil(); err != nil {
		h.fail(w, r, err)
		return
	}
	menus, err := h.app.Scheduling.List(r.Context(), caller(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, menus)
}

func (h *handler) getMenu(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Scheduling.Get(r.Context(), caller(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) updateMenuDetails(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ExpectedStudents *int    `json:"expectedStudents" validate:"omitempty,gte=0"`
		Notes            *string `json:"notes" validate:"omitempty,max=1000"`
	}
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.app.Scheduling.UpdateDetails(r.Context(), caller(r), pathVar(r, "id"), scheduling.Details{
		ExpectedStudents: payload.ExpectedStudents,
		Notes:            payload.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) addMenuItem(w http.ResponseWriter, r *http.Request) {
	var payload entryRequest
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.app.Scheduling.AddItem(r.Context(), caller(r), pathVar(r, "id"), payload.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) removeMenuItem(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Scheduling.RemoveItem(r.Context(), caller(r), pathVar(r, "id"), pathVar(r, "itemId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) updateMenuItemStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status           string `json:"status" validate:"required,oneof=not_started in_progress ready served_out"`
		PreparedQuantity *int   `json:"preparedQuantity" validate:"omitempty,gte=0"`
	}
	if err := bind(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.app.Scheduling.UpdateItemStatus(r.Context(), caller(r), pathVar(r, "id"), pathVar(r, "itemId"),
		dailymenu.PrepStatus(payload.Status), payload.PreparedQuantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) transitionMenu(w http.ResponseWriter, r *http.Request) {
	ctx, p, id := r.Context(), caller(r), pathVar(r, "id")
	var (
		m   dailymenu.Menu
		err error
	)
	switch pathVar(r, "action") {
	case "publish":
		m, err = h.app.Scheduling.Publish(ctx, p, id)
	case "activate":
		m, err = h.app.Scheduling.Activate(ctx, p, id)
	case "complete":
		m, err = h.app.Scheduling.Complete(ctx, p, id)
	case "cancel":
		m, err = h.app.Scheduling.Cancel(ctx, p, id)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
