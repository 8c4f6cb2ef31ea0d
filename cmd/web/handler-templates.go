package main

import (
	"net/http"
)

type templateSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	DurationWeeks int    `json:"durationWeeks"`
}

func (app *application) templatesGET(w http.ResponseWriter, r *http.Request) {
	templates := app.service.Catalog().Templates()
	summaries := make([]templateSummary, 0, len(templates))
	for _, t := range templates {
		summaries = append(summaries, templateSummary{
			ID:            t.ID,
			Name:          t.Name,
			Category:      string(t.Category),
			Difficulty:    string(t.Difficulty),
			DurationWeeks: t.DurationWeeks,
		})
	}
	app.writeJSON(w, r, http.StatusOK, summaries)
}

func (app *application) templateGET(w http.ResponseWriter, r *http.Request) {
	t, err := app.service.Catalog().Template(r.PathValue("id"))
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, t)
}

// templatesReloadPOST re-reads the template directory. A failed reload keeps the loaded templates.
func (app *application) templatesReloadPOST(w http.ResponseWriter, r *http.Request) {
	if err := app.service.Catalog().Reload(r.Context()); err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.templatesGET(w, r)
}
