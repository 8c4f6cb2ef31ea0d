package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/myrjola/ruckplan/internal/plan"
)

// weekdayList decodes weekdays given as English names ("monday", "tue") or as numbers with Sunday as 0.
type weekdayList []time.Weekday

func (l *weekdayList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("weekdays: %w", err)
	}
	days := make([]time.Weekday, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			d, err := plan.ParseWeekday(name)
			if err != nil {
				return err
			}
			days = append(days, d)
			continue
		}
		var n int
		if err := json.Unmarshal(item, &n); err != nil {
			return fmt.Errorf("weekday %s: %w", item, err)
		}
		days = append(days, time.Weekday(n))
	}
	*l = days
	return nil
}

type enrollRequest struct {
	Category   plan.Category   `json:"category"`
	Difficulty plan.Difficulty `json:"difficulty"`
	Weekdays   weekdayList     `json:"weekdays"`
	// StartDate is formatted as 2006-01-02. Empty starts today.
	StartDate string `json:"startDate"`
}

func (app *application) sessionsPOST(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !app.decodeJSON(w, r, &req) {
		return
	}
	var start time.Time
	if req.StartDate != "" {
		var err error
		if start, err = time.Parse(time.DateOnly, req.StartDate); err != nil {
			app.clientError(w, r, http.StatusBadRequest, "startDate must be formatted as YYYY-MM-DD")
			return
		}
	}
	session, err := app.service.Enroll(r.Context(), plan.Enrollment{
		Category:   req.Category,
		Difficulty: req.Difficulty,
		Weekdays:   req.Weekdays,
		StartDate:  start,
	})
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+session.ID)
	app.writeJSON(w, r, http.StatusCreated, session)
}

func (app *application) sessionGET(w http.ResponseWriter, r *http.Request) {
	session, err := app.service.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, session)
}

func (app *application) sessionDELETE(w http.ResponseWriter, r *http.Request) {
	if err := app.service.Deactivate(r.Context(), r.PathValue("id")); err != nil {
		app.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) sessionAdvancePOST(w http.ResponseWriter, r *http.Request) {
	session, err := app.service.AdvanceWeek(r.Context(), r.PathValue("id"))
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, session)
}

type weekdaysRequest struct {
	Weekdays weekdayList `json:"weekdays"`
}

func (app *application) sessionWeekdaysPUT(w http.ResponseWriter, r *http.Request) {
	var req weekdaysRequest
	if !app.decodeJSON(w, r, &req) {
		return
	}
	workflow, err := app.service.UpdateWeekdays(r.Context(), r.PathValue("id"), req.Weekdays)
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, workflow)
}

func (app *application) sessionPerformancePOST(w http.ResponseWriter, r *http.Request) {
	var metrics plan.PerformanceMetrics
	if !app.decodeJSON(w, r, &metrics) {
		return
	}
	if err := app.service.RecordPerformance(r.Context(), r.PathValue("id"), metrics); err != nil {
		app.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) sessionHistoryGET(w http.ResponseWriter, r *http.Request) {
	records, err := app.service.AdaptationHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	if records == nil {
		records = []plan.AdaptationRecord{}
	}
	app.writeJSON(w, r, http.StatusOK, records)
}
