package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/period"
)

func strPtr(s string) *string { return &s }

func TestCreateFamily(t *testing.T) {
	env := setupEngine(t, newTestStore(t), 3)
	ctx := context.Background()

	rec, err := env.engine.CreateFamily(ctx, "new", FamilySetup{
		FamilyName: " Smith ",
		Pin:        "4321",
		Tasks:      []model.Task{{Text: "Brush Teeth", Points: 10}},
		Rewards:    []model.Reward{{Text: "Ice Cream", Cost: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.FamilyName != "Smith" {
		t.Errorf("family name = %q", rec.FamilyName)
	}
	if rec.Pin == "4321" {
		t.Error("PIN stored in plain text")
	}
	if rec.Tasks[0].ID == "" || rec.Rewards[0].ID == "" {
		t.Error("catalogue entries missing IDs")
	}
	if rec.Tasks[0].TimeOfDay != period.Any {
		t.Errorf("time of day = %q, want any", rec.Tasks[0].TimeOfDay)
	}

	if err := env.engine.VerifyParentPIN(ctx, "new", "4321"); err != nil {
		t.Errorf("verify correct PIN: %v", err)
	}
	if err := env.engine.VerifyParentPIN(ctx, "new", "0000"); !errors.Is(err, ErrIncorrectPIN) {
		t.Errorf("verify wrong PIN err = %v", err)
	}

	_, err = env.engine.CreateFamily(ctx, "new", FamilySetup{FamilyName: "Again", Pin: "1111"})
	if !errors.Is(err, ErrFamilyExists) {
		t.Errorf("second create err = %v, want ErrFamilyExists", err)
	}
}

func TestCreateFamilyValidation(t *testing.T) {
	env := setupEngine(t, newTestStore(t), 3)

	_, err := env.engine.CreateFamily(context.Background(), "new", FamilySetup{FamilyName: "", Pin: "12a4"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("field errors = %+v", verr.Errors)
	}
	if snap, _ := env.store.Get(context.Background(), "new"); snap.Record != nil {
		t.Error("invalid family was written")
	}
}

func TestUpdateParentPIN(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	if err := env.engine.UpdateParentPIN(ctx, testFamily, "123"); !errors.Is(err, ErrValidation) {
		t.Errorf("short PIN err = %v", err)
	}
	if err := env.engine.UpdateParentPIN(ctx, testFamily, "9876"); err != nil {
		t.Fatalf("update PIN: %v", err)
	}
	if err := env.engine.VerifyParentPIN(ctx, testFamily, "9876"); err != nil {
		t.Errorf("new PIN rejected: %v", err)
	}
	if err := env.engine.VerifyParentPIN(ctx, testFamily, "1234"); !errors.Is(err, ErrIncorrectPIN) {
		t.Errorf("old PIN err = %v", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	task, err := env.engine.AddTask(ctx, testFamily, TaskInput{Text: "Feed Cat", Points: 15, TimeOfDay: "evening"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if task.TimeOfDay != period.Evening || task.AssignedTo == nil {
		t.Errorf("task = %+v", task)
	}

	updated, err := env.engine.UpdateTask(ctx, testFamily, task.ID, TaskInput{Text: "Feed Dog", Points: 25, AssignedTo: []string{"kid"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Text != "Feed Dog" || updated.TimeOfDay != period.Any {
		t.Errorf("updated = %+v", updated)
	}

	if err := env.engine.DeleteTask(ctx, testFamily, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := env.record(t).Task(task.ID); ok {
		t.Error("task still present")
	}
	if err := env.engine.DeleteTask(ctx, testFamily, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete missing err = %v", err)
	}
}

func TestTaskValidation(t *testing.T) {
	env := newEnv(t)
	tests := []struct {
		name  string
		in    TaskInput
		field string
	}{
		{"empty text", TaskInput{Text: " ", Points: 5}, "text"},
		{"zero points", TaskInput{Text: "x", Points: 0}, "points"},
		{"bad period", TaskInput{Text: "x", Points: 5, TimeOfDay: "noon"}, "timeOfDay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.AddTask(context.Background(), testFamily, tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Errors[0].Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Errors[0].Field, tt.field)
			}
		})
	}
	if n := len(env.record(t).Tasks); n != 3 {
		t.Errorf("tasks = %d, want 3", n)
	}
}

func TestDeleteTaskDropsPending(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	env.engine.Toggle(ctx, testFamily, "kid", "t1")
	if err := env.engine.DeleteTask(ctx, testFamily, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := len(env.record(t).PendingApprovals); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestRewardCRUD(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	r, err := env.engine.AddReward(ctx, testFamily, RewardInput{Text: "Movie", Cost: 80})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := env.engine.UpdateReward(ctx, testFamily, r.ID, RewardInput{Text: "Movie Night", Cost: 120}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := env.record(t).Reward(r.ID)
	if got.Text != "Movie Night" || got.Cost != 120 {
		t.Errorf("reward = %+v", got)
	}
	if _, err := env.engine.AddReward(ctx, testFamily, RewardInput{Text: "Free", Cost: 0}); !errors.Is(err, ErrValidation) {
		t.Errorf("zero cost err = %v", err)
	}
	if err := env.engine.DeleteReward(ctx, testFamily, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := env.record(t).Reward(r.ID); ok {
		t.Error("reward still present")
	}
}

func TestProfileLifecycle(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	p, err := env.engine.AddProfile(ctx, testFamily, ProfileInput{
		Name:      "Ben",
		Pin:       strPtr("5555"),
		Milestone: &model.Milestone{Name: "Bike", Target: 500},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.engine.VerifyProfilePIN(ctx, testFamily, p.ID, "5555"); err != nil {
		t.Errorf("verify: %v", err)
	}
	if err := env.engine.VerifyProfilePIN(ctx, testFamily, p.ID, "0000"); !errors.Is(err, ErrIncorrectPIN) {
		t.Errorf("wrong PIN err = %v", err)
	}

	updated, err := env.engine.UpdateProfile(ctx, testFamily, p.ID, ProfileInput{Name: "Benny", Pin: strPtr(""), ClearMilestone: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Benny" || updated.Pin != "" || updated.Milestone != nil {
		t.Errorf("updated = %+v", updated)
	}
	if err := env.engine.VerifyProfilePIN(ctx, testFamily, p.ID, ""); err != nil {
		t.Errorf("profile without PIN should verify: %v", err)
	}

	removed, err := env.engine.RemoveProfile(ctx, testFamily, p.ID)
	if err != nil || !removed {
		t.Fatalf("remove = %v, %v", removed, err)
	}
	if _, ok := env.record(t).Profile(p.ID); ok {
		t.Error("profile still present")
	}
}

func TestUpdateProfileResetPoints(t *testing.T) {
	env := newEnv(t)

	p, err := env.engine.UpdateProfile(context.Background(), testFamily, "kid", ProfileInput{Name: "Ava", ResetPoints: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Points != 0 {
		t.Errorf("points = %d, want 0", p.Points)
	}
}

func TestProfileValidation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	if _, err := env.engine.AddProfile(ctx, testFamily, ProfileInput{Name: "Cy", Pin: strPtr("12")}); !errors.Is(err, ErrValidation) {
		t.Errorf("short PIN err = %v", err)
	}
	if _, err := env.engine.AddProfile(ctx, testFamily, ProfileInput{Name: "Cy", Milestone: &model.Milestone{Name: "Bike"}}); !errors.Is(err, ErrValidation) {
		t.Errorf("zero target err = %v", err)
	}
}

func TestRemoveProfileClearsRequests(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	env.engine.Toggle(ctx, testFamily, "kid", "t1")
	env.engine.Toggle(ctx, testFamily, "kid", "t2")
	env.engine.Reject(ctx, testFamily, pendingFor("t2"))

	if _, err := env.engine.RemoveProfile(ctx, testFamily, "kid"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rec := env.record(t)
	if len(rec.PendingApprovals) != 0 || len(rec.Notifications) != 0 {
		t.Errorf("pending=%d notifications=%d", len(rec.PendingApprovals), len(rec.Notifications))
	}
	if len(rec.Logs) != 1 {
		t.Errorf("logs = %d, want 1 kept for audit", len(rec.Logs))
	}
}
