package conversation

import (
	"errors"
	"testing"
)

func TestTransitionEdges(t *testing.T) {
	tests := []struct {
		from   Status
		action Action
		want   Status
	}{
		{StatusWaiting, ActionActivate, StatusActive},
		{StatusActive, ActionBotReply, StatusInBot},
		{StatusInBot, ActionAssume, StatusWithAgent},
		{StatusWithAgent, ActionReturnBot, StatusInBot},
		{StatusInBot, ActionHandoff, StatusWithAgent},
		{StatusWithAgent, ActionTransfer, StatusTransferred},
		{StatusInBot, ActionQualify, StatusQualified},
		{StatusQualified, ActionClose, StatusClosed},
		{StatusTransferred, ActionClose, StatusClosed},
		{StatusClosed, ActionReactivate, StatusInBot},
	}
	for _, tt := range tests {
		got, err := Transition(tt.from, tt.action)
		if err != nil {
			t.Fatalf("%s from %s: unexpected error %v", tt.action, tt.from, err)
		}
		if got != tt.want {
			t.Fatalf("%s from %s: expected %s, got %s", tt.action, tt.from, tt.want, got)
		}
	}
}

func TestTransitionRejectsUndefinedEdges(t *testing.T) {
	tests := []struct {
		from   Status
		action Action
	}{
		{StatusWaiting, ActionBotReply},
		{StatusClosed, ActionClose},
		{StatusQualified, ActionReturnBot},
		{StatusWithAgent, ActionHandoff},
		{StatusInBot, ActionReactivate},
		{StatusInBot, Action("explode")},
	}
	for _, tt := range tests {
		if _, err := Transition(tt.from, tt.action); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s from %s: expected ErrInvalidTransition, got %v", tt.action, tt.from, err)
		}
	}
}

func TestCategoryHelpers(t *testing.T) {
	for _, c := range GenericCategories() {
		if !IsGenericCategory(c) || IsSpecificCategory(c) {
			t.Fatalf("expected %s to be generic", c)
		}
	}
	if IsSpecificCategory("") {
		t.Fatalf("empty category must not be specific")
	}
	if !IsSpecificCategory("energia_solar") {
		t.Fatalf("expected energia_solar to be specific")
	}
	if CategoryLabel("energia_solar") != "Energia Solar" {
		t.Fatalf("unexpected label %q", CategoryLabel("energia_solar"))
	}
	if CategoryLabel("novo_produto") != "novo_produto" {
		t.Fatalf("unknown categories should fall back to the raw id")
	}
	if TemperatureLabel("hot") != "Quente" || TemperatureLabel("bogus") != "" {
		t.Fatalf("unexpected temperature labels")
	}
}
