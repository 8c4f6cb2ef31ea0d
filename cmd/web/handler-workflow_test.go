package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/myrjola/ruckplan/internal/sqlite"
	"github.com/myrjola/ruckplan/internal/testhelpers"
)

func newServiceTestApplication(t *testing.T) *application {
	t.Helper()
	logger := testhelpers.Logger(t)
	db, err := sqlite.NewDatabase(t.Context(), ":memory:", logger)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() {
		if err = db.Close(); err != nil {
			t.Errorf("close database: %v", err)
		}
	})
	service, err := plan.NewService(db, logger, plan.NewCatalog(logger, plan.BuiltinTemplates()...))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	app := newTestApplication(t)
	app.service = service
	return app
}

func Test_application_workflowRegeneratePOST(t *testing.T) {
	app := newServiceTestApplication(t)
	handler := app.routes()
	session, err := app.service.Enroll(t.Context(), plan.Enrollment{
		Category:   plan.CategoryMilitary,
		Difficulty: plan.DifficultyBeginner,
		Weekdays:   []time.Weekday{time.Monday, time.Thursday},
		StartDate:  time.Time{},
	})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	url := "/api/sessions/" + session.ID + "/workflow/regenerate"

	tests := []struct {
		name          string
		body          io.Reader
		contentLength int64
		wantStatus    int
	}{
		{"no body", nil, 0, http.StatusOK},
		{"chunked empty body", http.NoBody, -1, http.StatusOK},
		{"reason", strings.NewReader(`{"reason":"schedule_changed"}`), 29, http.StatusOK},
		{"truncated json", strings.NewReader(`{"reason":`), 10, http.StatusBadRequest},
		{"unknown reason", strings.NewReader(`{"reason":"bored"}`), 18, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, url, tt.body)
			req.ContentLength = tt.contentLength
			if tt.contentLength < 0 {
				req.TransferEncoding = []string{"chunked"}
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	history, err := app.service.AdaptationHistory(t.Context(), session.ID)
	if err != nil {
		t.Fatalf("AdaptationHistory: %v", err)
	}
	reasons := make([]plan.RegenerationReason, 0, len(history))
	for _, r := range history {
		reasons = append(reasons, r.Reason)
	}
	want := []plan.RegenerationReason{plan.ReasonManual, plan.ReasonManual, plan.ReasonScheduleChanged}
	if diff := cmp.Diff(want, reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}
