package agent_test

import (
	"errors"
	"testing"

	"github.com/Gurpartap/newsagent/agent"
)

func TestValidateRunStateMatrix(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		state   agent.RunState
		wantErr error
	}{
		{
			name: "valid pending",
			state: agent.RunState{
				ID:     "run-valid-1",
				Status: agent.RunStatusPending,
			},
		},
		{
			name: "valid done",
			state: agent.RunState{
				ID:      "run-valid-2",
				Version: 3,
				Step:    5,
				Status:  agent.RunStatusDone,
				Output:  "digest ready",
			},
		},
		{
			name: "valid failed with cause",
			state: agent.RunState{
				ID:     "run-valid-3",
				Step:   10,
				Status: agent.RunStatusFailed,
				Cause:  agent.CauseIterationLimitExceeded,
			},
		},
		{
			name: "empty id",
			state: agent.RunState{
				Status: agent.RunStatusPending,
			},
			wantErr: agent.ErrRunStateInvalid,
		},
		{
			name: "negative step",
			state: agent.RunState{
				ID:     "run-negative-step",
				Step:   -1,
				Status: agent.RunStatusPending,
			},
			wantErr: agent.ErrRunStateInvalid,
		},
		{
			name: "negative version",
			state: agent.RunState{
				ID:      "run-negative-version",
				Version: -1,
				Status:  agent.RunStatusPending,
			},
			wantErr: agent.ErrRunStateInvalid,
		},
		{
			name: "empty status",
			state: agent.RunState{
				ID: "run-empty-status",
			},
			wantErr: agent.ErrRunStateInvalid,
		},
		{
			name: "unknown status",
			state: agent.RunState{
				ID:     "run-unknown-status",
				Status: agent.RunStatus("mystery"),
			},
			wantErr: agent.ErrRunStateInvalid,
		},
		{
			name: "failed without cause",
			state: agent.RunState{
				ID:     "run-failed-no-cause",
				Status: agent.RunStatusFailed,
			},
			wantErr: agent.ErrRunStateInvalid,
		},
		{
			name: "orphan tool message",
			state: agent.RunState{
				ID:     "run-orphan-tool",
				Status: agent.RunStatusAwaitingModel,
				Messages: []agent.Message{
					{Role: agent.RoleUser, Content: "digest"},
					{Role: agent.RoleTool, ToolCallID: "call-9", Content: "[]"},
				},
			},
			wantErr: agent.ErrContractViolation,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := agent.ValidateRunState(tc.state)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateConversation(t *testing.T) {
	t.Parallel()

	assistant := agent.Message{
		Role: agent.RoleAssistant,
		ToolCalls: []agent.ToolCall{
			{ID: "call-1", Name: "search_news"},
			{ID: "call-2", Name: "search_news"},
		},
	}

	testCases := []struct {
		name     string
		messages []agent.Message
		wantErr  bool
	}{
		{
			name: "every call answered once",
			messages: []agent.Message{
				{Role: agent.RoleSystem, Content: "You are a news agent."},
				{Role: agent.RoleUser, Content: "digest"},
				assistant,
				{Role: agent.RoleTool, ToolCallID: "call-1"},
				{Role: agent.RoleTool, ToolCallID: "call-2"},
				{Role: agent.RoleAssistant, Content: "done"},
			},
		},
		{
			name: "answer before request",
			messages: []agent.Message{
				{Role: agent.RoleUser, Content: "digest"},
				{Role: agent.RoleTool, ToolCallID: "call-1"},
				assistant,
			},
			wantErr: true,
		},
		{
			name: "answered twice",
			messages: []agent.Message{
				assistant,
				{Role: agent.RoleTool, ToolCallID: "call-1"},
				{Role: agent.RoleTool, ToolCallID: "call-1"},
			},
			wantErr: true,
		},
		{
			name: "duplicate call id across turns",
			messages: []agent.Message{
				assistant,
				{Role: agent.RoleTool, ToolCallID: "call-1"},
				{Role: agent.RoleTool, ToolCallID: "call-2"},
				assistant,
			},
			wantErr: true,
		},
		{
			name: "blank call id",
			messages: []agent.Message{
				{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{{Name: "search_news"}}},
			},
			wantErr: true,
		},
		{
			name: "unknown role",
			messages: []agent.Message{
				{Role: agent.Role("narrator"), Content: "once upon a time"},
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := agent.ValidateConversation(tc.messages)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, agent.ErrContractViolation) {
				t.Fatalf("expected ErrContractViolation, got %v", err)
			}
		})
	}
}
