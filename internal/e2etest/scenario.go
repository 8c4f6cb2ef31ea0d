package e2etest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/myrjola/ruckplan/internal/plan"
)

// Enroll creates a session training on the given weekday names.
func (c *Client) Enroll(ctx context.Context, category plan.Category, difficulty plan.Difficulty,
	weekdays ...string) (plan.Session, error) {
	var session plan.Session
	if err := c.PostJSON(ctx, "/api/sessions", map[string]any{
		"category":   category,
		"difficulty": difficulty,
		"weekdays":   weekdays,
	}, &session); err != nil {
		return plan.Session{}, fmt.Errorf("enroll: %w", err)
	}
	return session, nil
}

// Smoke runs the happy path of a session against a live server and deactivates the session afterwards.
func Smoke(ctx context.Context, c *Client) error {
	session, err := c.Enroll(ctx, plan.CategoryMilitary, plan.DifficultyBeginner, "mon", "wed", "sat")
	if err != nil {
		return err
	}
	base := "/api/sessions/" + session.ID

	var active plan.ActiveWorkflow
	if err = c.GetJSON(ctx, base+"/workflow", &active); err != nil {
		return fmt.Errorf("get workflow: %w", err)
	}
	if len(active.Workflow.Workouts) == 0 {
		return fmt.Errorf("workflow %s has no workouts", active.Workflow.ID)
	}
	var schedule []plan.ScheduledWorkout
	if err = c.GetJSON(ctx, base+"/schedule", &schedule); err != nil {
		return fmt.Errorf("get schedule: %w", err)
	}
	var regenerated plan.GeneratedWorkflow
	if err = c.PostJSON(ctx, base+"/workflow/regenerate", nil, &regenerated); err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}
	if regenerated.ID == active.Workflow.ID {
		return fmt.Errorf("regeneration kept workflow %s", regenerated.ID)
	}
	if err = c.DoJSON(ctx, http.MethodDelete, base, nil, nil); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	return nil
}
