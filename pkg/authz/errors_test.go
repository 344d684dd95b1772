package authz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := &Error{Kind: KindPartialApply, Op: "grant privilege", Policy: "kylo_a_b_hive", Applied: 2, Err: errors.New("boom")}

	assert.ErrorIs(t, err, ErrPartialApply)
	assert.NotErrorIs(t, err, ErrStoreRejected)

	wrapped := fmt.Errorf("reconcile: %w", err)
	assert.ErrorIs(t, wrapped, ErrPartialApply)
	assert.Equal(t, KindPartialApply, KindOf(wrapped))
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindPartialApply, Op: "grant privilege", Policy: "kylo_a_b_hive", Applied: 2, Err: errors.New("boom")}
	assert.Equal(t, "grant privilege: partial-apply (policy kylo_a_b_hive, 2 mutations applied): boom", err.Error())

	err = &Error{Kind: KindStoreUnavailable, Op: "role exists", Policy: "kylo_a_b_hive", Err: errors.New("dial tcp")}
	assert.Equal(t, "role exists: store-unavailable (policy kylo_a_b_hive): dial tcp", err.Error())
}

func TestError_UnwrapReachesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{Kind: KindStoreUnavailable, Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&Error{Kind: KindStoreUnavailable}, true},
		{&Error{Kind: KindPartialApply}, true},
		{&Error{Kind: KindStoreRejected}, false},
		{&Error{Kind: KindNameCollision}, false},
		{&Error{Kind: KindNotSupported}, false},
		{&Error{Kind: KindInvalidArgument}, false},
		{errors.New("plain"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestNotSupported(t *testing.T) {
	err := NotSupported(TypeSentry, "delete hive policy")
	assert.ErrorIs(t, err, ErrNotSupported)
	assert.Contains(t, err.Error(), "SENTRY backend does not implement delete hive policy")
}
