package main

import (
	"net/http"

	"github.com/myrjola/ruckplan/internal/plan"
)

func (app *application) workflowGET(w http.ResponseWriter, r *http.Request) {
	active, err := app.service.Workflow(r.Context(), r.PathValue("id"))
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, active)
}

type regenerateRequest struct {
	Reason plan.RegenerationReason `json:"reason"`
}

// workflowRegeneratePOST regenerates the workflow. The body is optional and defaults to a manual regeneration.
func (app *application) workflowRegeneratePOST(w http.ResponseWriter, r *http.Request) {
	req := regenerateRequest{Reason: plan.ReasonManual}
	if !app.decodeOptionalJSON(w, r, &req) {
		return
	}
	workflow, err := app.service.Regenerate(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, workflow)
}

func (app *application) workflowCheckGET(w http.ResponseWriter, r *http.Request) {
	check, err := app.service.CheckRegeneration(r.Context(), r.PathValue("id"))
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, check)
}

func (app *application) scheduleGET(w http.ResponseWriter, r *http.Request) {
	schedule, err := app.service.Schedule(r.Context(), r.PathValue("id"))
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, schedule)
}

func (app *application) workoutCompletePOST(w http.ResponseWriter, r *http.Request) {
	if err := app.service.RecordCompletion(r.Context(), r.PathValue("id"), r.PathValue("workoutID")); err != nil {
		app.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type archiveResponse struct {
	URL string `json:"url"`
}

func (app *application) workflowArchiveGET(w http.ResponseWriter, r *http.Request) {
	url, err := app.service.ArchiveURL(r.Context(), r.PathValue("id"), r.PathValue("workflowID"))
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, archiveResponse{URL: url})
}

func (app *application) sweepPOST(w http.ResponseWriter, r *http.Request) {
	result, err := app.sweeper.RunOnce(r.Context())
	if err != nil {
		app.serviceError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, result)
}
