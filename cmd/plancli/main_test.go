package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/myrjola/ruckplan/internal/sqlite"
	"github.com/myrjola/ruckplan/internal/testhelpers"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out, testhelpers.NewWriter(t))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func writeTemplateFile(t *testing.T, dir string, tmpl plan.WorkflowTemplate) string {
	t.Helper()
	var buf bytes.Buffer
	if err := plan.EncodeTemplate(&buf, tmpl); err != nil {
		t.Fatalf("EncodeTemplate: %v", err)
	}
	name := filepath.Join(dir, tmpl.ID+".yaml")
	if err := os.WriteFile(name, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}
	return name
}

func TestTemplatesList(t *testing.T) {
	out, err := runCLI(t, "templates", "list")
	if err != nil {
		t.Fatalf("templates list: %v", err)
	}
	for _, want := range []string{"ID", "military-foundation", "foundation-fitness"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestTemplatesList_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	custom := plan.DefaultTemplate()
	custom.ID = "hill-ruck"
	custom.Name = "Hill ruck"
	writeTemplateFile(t, dir, custom)

	config := filepath.Join(t.TempDir(), "plancli.yaml")
	if err := os.WriteFile(config, []byte("template-dir: "+dir+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := runCLI(t, "--config", config, "templates", "list")
	if err != nil {
		t.Fatalf("templates list: %v", err)
	}
	if !strings.Contains(out, "hill-ruck") {
		t.Errorf("output lacks the template from the configured directory:\n%s", out)
	}

	t.Setenv("PLAN_TEMPLATE_DIR", dir)
	if out, err = runCLI(t, "templates", "show", "hill-ruck"); err != nil {
		t.Fatalf("templates show with PLAN_TEMPLATE_DIR: %v", err)
	}
	if !strings.Contains(out, "Hill ruck") {
		t.Errorf("show output:\n%s", out)
	}
}

func TestTemplatesShow(t *testing.T) {
	out, err := runCLI(t, "templates", "show", "military-foundation")
	if err != nil {
		t.Fatalf("templates show: %v", err)
	}
	tmpl, err := plan.DecodeTemplate(strings.NewReader(out))
	if err != nil {
		t.Fatalf("decode shown template: %v", err)
	}
	if tmpl.ID != "military-foundation" {
		t.Errorf("shown template %s", tmpl.ID)
	}

	if _, err = runCLI(t, "templates", "show", "nope"); !errors.Is(err, plan.ErrTemplateNotFound) {
		t.Errorf("show unknown template error = %v, want ErrTemplateNotFound", err)
	}
}

func TestTemplatesValidate(t *testing.T) {
	dir := t.TempDir()
	valid := writeTemplateFile(t, dir, plan.DefaultTemplate())
	invalid := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(invalid, []byte("id: broken\ndurationWeeks: -1\n"), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}

	out, err := runCLI(t, "templates", "validate", valid)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok (foundation-fitness)") {
		t.Errorf("output:\n%s", out)
	}

	out, err = runCLI(t, "templates", "validate", valid, invalid)
	if err == nil {
		t.Fatal("validate of a broken template succeeded")
	}
	if !strings.Contains(out, "broken.yaml:") || !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("output:\n%s\nerror: %v", out, err)
	}
}

func TestSchedulePreview(t *testing.T) {
	out, err := runCLI(t, "schedule", "preview", "--category", "military", "--difficulty", "beginner",
		"--weekdays", "mon,thu", "--start", "2026-03-02")
	if err != nil {
		t.Fatalf("schedule preview: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(lines[0], "template military-foundation") {
		t.Errorf("first line = %q", lines[0])
	}
	if len(lines) < 3 {
		t.Fatalf("no workouts in preview:\n%s", out)
	}
	for _, line := range lines[2:] {
		fields := strings.Fields(line)
		date, parseErr := time.Parse(time.DateOnly, fields[0])
		if parseErr != nil {
			t.Fatalf("parse date of %q: %v", line, parseErr)
		}
		if wd := date.Weekday(); wd != time.Monday && wd != time.Thursday {
			t.Errorf("workout on %s: %q", wd, line)
		}
		if date.Before(time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("workout before start: %q", line)
		}
	}

	_, err = runCLI(t, "schedule", "preview", "--weekdays", "someday")
	if !errors.Is(err, plan.ErrInvalidParameters) {
		t.Errorf("unknown weekday error = %v, want ErrInvalidParameters", err)
	}
	_, err = runCLI(t, "schedule", "preview", "--start", "tomorrow")
	if !errors.Is(err, plan.ErrInvalidParameters) {
		t.Errorf("bad start error = %v, want ErrInvalidParameters", err)
	}
}

func TestSessions(t *testing.T) {
	ctx := t.Context()
	dbURL := filepath.Join(t.TempDir(), "plan.sqlite3")
	logger := testhelpers.Logger(t)
	db, err := sqlite.NewDatabase(ctx, dbURL, logger)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	svc, err := plan.NewService(db, logger, plan.NewCatalog(logger, plan.BuiltinTemplates()...))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	session, err := svc.Enroll(ctx, plan.Enrollment{
		Category:   plan.CategoryMilitary,
		Difficulty: plan.DifficultyBeginner,
		Weekdays:   []time.Weekday{time.Tuesday, time.Saturday},
		StartDate:  time.Time{},
	})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err = db.Close(); err != nil {
		t.Fatalf("close database: %v", err)
	}

	run := func(args ...string) string {
		t.Helper()
		out, runErr := runCLI(t, append([]string{"--sqlite-url", dbURL}, args...)...)
		if runErr != nil {
			t.Fatalf("%v: %v", args, runErr)
		}
		return out
	}

	if out := run("sessions", "list"); strings.TrimSpace(out) != session.ID {
		t.Errorf("sessions list = %q, want %s", out, session.ID)
	}
	out := run("sessions", "show", session.ID)
	for _, want := range []string{"military-foundation", "week:        1 of 8", "regenerate:  false"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output lacks %q:\n%s", want, out)
		}
	}
	if out = run("sessions", "regenerate", session.ID); !strings.Contains(out, "regenerated workflow") {
		t.Errorf("regenerate output:\n%s", out)
	}
	if out = run("sessions", "history", session.ID); !strings.Contains(out, string(plan.ReasonManual)) {
		t.Errorf("history output:\n%s", out)
	}
	exportDir := t.TempDir()
	wantExport := "exported to " + filepath.Join(exportDir, "session-"+session.ID+".sqlite3") + "\n"
	if out = run("sessions", "export", session.ID, "--dir", exportDir); out != wantExport {
		t.Errorf("export output = %q, want %q", out, wantExport)
	}
	if _, err = runCLI(t, "--sqlite-url", dbURL, "sessions", "regenerate", session.ID, "--reason", "bogus"); !errors.Is(
		err, plan.ErrInvalidParameters) {
		t.Errorf("regenerate with unknown reason error = %v, want ErrInvalidParameters", err)
	}
	if out = run("sweep", "--sweep-concurrency", "2"); out != "checked 1, regenerated 0, failed 0, pruned 0\n" {
		t.Errorf("sweep output = %q", out)
	}
	run("sessions", "deactivate", session.ID)
	if out = run("sessions", "list"); out != "" {
		t.Errorf("sessions list after deactivate = %q", out)
	}
	if _, err = runCLI(t, "--sqlite-url", dbURL, "sessions", "show", "missing"); !errors.Is(
		err, plan.ErrSessionNotFound) {
		t.Errorf("show unknown session error = %v, want ErrSessionNotFound", err)
	}
}
