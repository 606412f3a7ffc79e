package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurstThenDenies(t *testing.T) {
	l := New()
	allowed := 0
	for i := 0; i < limits["evaluate"].burst+5; i++ {
		if l.Allow("evaluate") {
			allowed++
		}
	}
	assert.Equal(t, limits["evaluate"].burst, allowed)
}

func TestUnknownCategoryUsesDefault(t *testing.T) {
	l := New()
	allowed := 0
	for i := 0; i < limits["default"].burst+3; i++ {
		if l.Allow("unknown-category") {
			allowed++
		}
	}
	assert.Equal(t, limits["default"].burst, allowed)
}

func TestWaitReturnsOnceTokenAvailable(t *testing.T) {
	l := New()
	for i := 0; i < limits["step"].burst; i++ {
		require.True(t, l.Allow("step"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.Wait(ctx, "step")
	assert.NoError(t, err)
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	l := New()
	for i := 0; i < limits["evaluate"].burst; i++ {
		require.True(t, l.Allow("evaluate"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "evaluate")
	assert.Error(t, err)
}

func TestCategoriesAreIndependent(t *testing.T) {
	l := New()
	for i := 0; i < limits["evaluate"].burst; i++ {
		require.True(t, l.Allow("evaluate"))
	}
	assert.False(t, l.Allow("evaluate"))
	assert.True(t, l.Allow("step"))
}
