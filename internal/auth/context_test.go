package auth

import (
	"context"
	"testing"
)

func TestRequesterContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := RequesterFromContext(ctx); got != "" {
		t.Errorf("RequesterFromContext on empty context = %q, want empty", got)
	}

	ctx = ContextWithRequester(ctx, "123456789")
	if got := RequesterFromContext(ctx); got != "123456789" {
		t.Errorf("RequesterFromContext = %q, want %q", got, "123456789")
	}
}

func TestOperatorContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if IsOperator(ctx) {
		t.Error("IsOperator should be false by default")
	}
	if !IsOperator(ContextWithOperator(ctx)) {
		t.Error("IsOperator should be true after ContextWithOperator")
	}
}
