package services_test

import (
	"context"
	"testing"

	"reeler/internal/services"
)

func TestScopeAccumulates(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRecordID(ctx, 42)
	ctx = services.WithStage(ctx, "downloading")
	ctx = services.WithHost(ctx, "worker-a")
	ctx = services.WithRequestID(ctx, "req-123")

	want := services.Scope{RecordID: 42, Stage: "downloading", Host: "worker-a", RequestID: "req-123"}
	if got := services.ScopeFromContext(ctx); got != want {
		t.Fatalf("scope = %+v, want %+v", got, want)
	}
	if id, ok := services.RecordIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected record id: %v %v", id, ok)
	}
	if host, ok := services.HostFromContext(ctx); !ok || host != "worker-a" {
		t.Fatalf("unexpected host: %v %v", host, ok)
	}
}

func TestScopeIsCopiedNotShared(t *testing.T) {
	parent := services.WithStage(context.Background(), "downloading")
	child := services.WithStage(parent, "converting")

	if stage, _ := services.StageFromContext(parent); stage != "downloading" {
		t.Fatalf("parent stage changed to %q", stage)
	}
	if stage, _ := services.StageFromContext(child); stage != "converting" {
		t.Fatalf("child stage = %q", stage)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	if got := services.WithStage(ctx, ""); got != ctx {
		t.Fatal("blank stage should return the same context")
	}
	if got := services.WithRecordID(ctx, 0); got != ctx {
		t.Fatal("zero record id should return the same context")
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
