package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
	session "github.com/zhouzirui/survey-runner/backend/internal/service/session"
)

func TestServiceGetSession(t *testing.T) {
	svc := session.NewService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != created.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, created.ID)
	}
	if got.State != survey.StateIdle {
		t.Fatalf("unexpected state: got %s", got.State)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := session.NewService()
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing session")
	}
	if _, _, err := svc.Subscribe("missing"); err == nil {
		t.Fatal("expected error subscribing to missing session")
	}
}

func TestServicePublishUpdatesStateAndSubscribers(t *testing.T) {
	svc := session.NewService()
	ctx := context.Background()

	created, _ := svc.CreateSession(ctx)
	events, cancel, err := svc.Subscribe(created.ID)
	if err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}
	defer cancel()

	svc.Publish(survey.Event{SessionID: created.ID, From: survey.StateIdle, State: survey.StateLoading})

	select {
	case ev := <-events:
		if ev.State != survey.StateLoading {
			t.Fatalf("unexpected event state: %s", ev.State)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	got, _ := svc.GetSession(ctx, created.ID)
	if got.State != survey.StateLoading {
		t.Fatalf("state not recorded: got %s", got.State)
	}
}

func TestServiceEndSessionClosesSubscribers(t *testing.T) {
	svc := session.NewService()
	ctx := context.Background()

	created, _ := svc.CreateSession(ctx)
	events, cancel, _ := svc.Subscribe(created.ID)

	if err := svc.EndSession(ctx, created.ID); err != nil {
		t.Fatalf("EndSession err: %v", err)
	}
	if _, ok := <-events; ok {
		t.Fatal("expected closed channel")
	}
	// releasing after the session ended must not panic
	cancel()

	if _, err := svc.GetSession(ctx, created.ID); err == nil {
		t.Fatal("expected session to be gone")
	}
}

func TestServiceClaimOnce(t *testing.T) {
	svc := session.NewService()
	ctx := context.Background()

	created, _ := svc.CreateSession(ctx)
	if err := svc.Claim(ctx, created.ID); err != nil {
		t.Fatalf("Claim err: %v", err)
	}
	if err := svc.Claim(ctx, created.ID); !errors.Is(err, session.ErrSessionClaimed) {
		t.Fatalf("expected ErrSessionClaimed, got %v", err)
	}

	svc.Release(created.ID)
	if err := svc.Claim(ctx, created.ID); err != nil {
		t.Fatalf("Claim after release err: %v", err)
	}

	svc.Publish(survey.Event{SessionID: created.ID, From: survey.StateIdle, State: survey.StateLoading})
	svc.Release(created.ID)
	if err := svc.Claim(ctx, created.ID); !errors.Is(err, session.ErrSessionClaimed) {
		t.Fatalf("expected running session to stay claimed, got %v", err)
	}

	if err := svc.Claim(ctx, "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
