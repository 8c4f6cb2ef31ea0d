package main

import (
	"net/http"
)

const (
	healthPath = "/api/healthy"
	// sessionRoutePrefix starts every route that addresses a single session.
	sessionRoutePrefix = "/api/sessions/{id}"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	var (
		api = func(next http.Handler) http.Handler {
			return app.recoverPanic(app.logAndTraceRequest(secureHeaders(noCache(app.timeout(next)))))
		}
		handle = func(pattern string, h http.HandlerFunc) {
			mux.Handle(pattern, api(h))
		}
	)

	handle("GET /api/templates", app.templatesGET)
	handle("GET /api/templates/{id}", app.templateGET)
	handle("POST /api/templates/reload", app.templatesReloadPOST)

	handle("POST /api/sessions", app.sessionsPOST)
	handle("GET /api/sessions/{id}", app.sessionGET)
	handle("DELETE /api/sessions/{id}", app.sessionDELETE)
	handle("POST /api/sessions/{id}/advance", app.sessionAdvancePOST)
	handle("PUT /api/sessions/{id}/weekdays", app.sessionWeekdaysPUT)
	handle("POST /api/sessions/{id}/performance", app.sessionPerformancePOST)
	handle("GET /api/sessions/{id}/history", app.sessionHistoryGET)

	handle("GET /api/sessions/{id}/workflow", app.workflowGET)
	handle("POST /api/sessions/{id}/workflow/regenerate", app.workflowRegeneratePOST)
	handle("GET /api/sessions/{id}/workflow/check", app.workflowCheckGET)
	handle("GET /api/sessions/{id}/schedule", app.scheduleGET)
	handle("POST /api/sessions/{id}/workouts/{workoutID}/complete", app.workoutCompletePOST)
	handle("GET /api/sessions/{id}/workflows/{workflowID}/archive", app.workflowArchiveGET)

	handle("POST /api/sweep", app.sweepPOST)
	handle("GET "+healthPath, app.healthy)
	if app.testRoutes {
		handle("GET /api/test/timeout", app.testTimeout)
	}

	mux.Handle("/", api(http.HandlerFunc(app.notFound)))

	return mux
}
