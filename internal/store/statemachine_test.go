package store

import (
	"testing"

	"github.com/mautops/netops-gin/internal/model"
	"github.com/stretchr/testify/assert"
)

var allStatuses = []string{
	model.StatusPending,
	model.StatusPendingApproval,
	model.StatusApproved,
	model.StatusRejected,
	model.StatusRunning,
	model.StatusCompleted,
	model.StatusFailed,
}

func TestCanTransitionLegalEdges(t *testing.T) {
	legal := map[[2]string]bool{
		{model.StatusPendingApproval, model.StatusApproved}: true,
		{model.StatusPendingApproval, model.StatusRejected}: true,
		{model.StatusPendingApproval, model.StatusPending}:  true,
		{model.StatusPending, model.StatusApproved}:         true,
		{model.StatusApproved, model.StatusRunning}:         true,
		{model.StatusRunning, model.StatusCompleted}:        true,
		{model.StatusRunning, model.StatusFailed}:           true,
		{model.StatusRunning, model.StatusApproved}:         true,
	}

	// 全状态对枚举:边表之外的一律非法
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got := CanTransition(from, to)
			want := legal[[2]string{from, to}]
			assert.Equal(t, want, got, "transition %s -> %s", from, to)
		}
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	for _, terminal := range []string{model.StatusCompleted, model.StatusFailed, model.StatusRejected} {
		assert.Empty(t, NextStates(terminal), "terminal state %s must have no outgoing edges", terminal)
		for _, to := range allStatuses {
			assert.False(t, CanTransition(terminal, to), "%s -> %s must be illegal", terminal, to)
		}
	}
}

func TestInitialStatusIsPendingApproval(t *testing.T) {
	assert.Equal(t, model.StatusPendingApproval, InitialStatus)
}

func TestSelfTransitionsAreIllegal(t *testing.T) {
	for _, status := range allStatuses {
		assert.False(t, CanTransition(status, status), "self transition on %s", status)
	}
}

func TestUnknownStatusHasNoEdges(t *testing.T) {
	assert.False(t, CanTransition("bogus", model.StatusApproved))
	assert.False(t, CanTransition(model.StatusApproved, "bogus"))
	assert.Empty(t, NextStates("bogus"))
}
