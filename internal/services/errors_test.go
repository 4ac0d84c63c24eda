package services

import (
	"errors"
	"fmt"
	"testing"

	"campusride/internal/repositories/interfaces"
)

func TestServiceErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", conflict("request %s taken", "abc"))

	if !errors.Is(err, ErrConflict) {
		t.Error("conflict does not match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("conflict matches ErrNotFound")
	}
}

func TestStoreError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{"missing document", fmt.Errorf("lookup: %w", interfaces.ErrDocumentNotFound), ErrNotFound},
		{"driver failure", errors.New("server selection timeout"), ErrDependencyUnavailable},
		{"already classified", unauthorized("nope"), ErrUnauthorized},
	}
	for _, tc := range cases {
		got := storeError(tc.err, "ride request")
		if !errors.Is(got, tc.want) {
			t.Errorf("storeError(%s) = %v, want kind %s", tc.name, got, tc.want.Kind)
		}
	}
	if storeError(nil, "x") != nil {
		t.Error("storeError(nil) != nil")
	}
}
