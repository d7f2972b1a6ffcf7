package service

import (
	"testing"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "PENDING", normalizeState(" pending "))
	assert.Equal(t, "COMPLETED", normalizeState("Completed"))
	assert.Equal(t, "", normalizeState("  "))
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		current string
		next    string
		want    bool
	}{
		{domain.TxStatusPending, domain.TxStatusCompleted, true},
		{domain.TxStatusPending, domain.TxStatusRejected, true},
		{"pending", "completed", true},
		{domain.TxStatusCompleted, domain.TxStatusPending, false},
		{domain.TxStatusCompleted, domain.TxStatusRejected, false},
		{domain.TxStatusRejected, domain.TxStatusCompleted, false},
		{domain.TxStatusPending, "ARCHIVED", false},
		{"UNKNOWN", domain.TxStatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, canTransition(tc.current, tc.next),
			"%s -> %s", tc.current, tc.next)
	}
}

func TestRequireExactlyOne(t *testing.T) {
	assert.NoError(t, requireExactlyOne(1, "update"))
	assert.Error(t, requireExactlyOne(0, "update"))
	assert.Error(t, requireExactlyOne(2, "update"))
}
