package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestValues(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserID(ctx); ok {
		t.Fatal("empty context has a user")
	}
	ctx = WithOp(WithUserID(WithRequestID(ctx, "req-1"), 42), "sessions.create")
	if id, ok := RequestID(ctx); !ok || id != "req-1" {
		t.Fatalf("request id = %q, %v", id, ok)
	}
	if id, ok := UserID(ctx); !ok || id != 42 {
		t.Fatalf("user id = %d, %v", id, ok)
	}
	if op, ok := Op(ctx); !ok || op != "sessions.create" {
		t.Fatalf("op = %q, %v", op, ok)
	}
}

func TestWithDBTimeout(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ctx, cancel2 := WithDBTimeout(parent)
	defer cancel2()
	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatal("no deadline")
	}
	if time.Until(dl) > 50*time.Millisecond {
		t.Fatalf("deadline %v exceeds the parent's", time.Until(dl))
	}

	ctx, cancel3 := WithDBTimeout(context.Background())
	defer cancel3()
	if dl, _ := ctx.Deadline(); time.Until(dl) > DefaultDBTimeout {
		t.Fatal("default timeout not applied")
	}
}
