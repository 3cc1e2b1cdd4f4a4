// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package memory

import "testing"

func TestMemory_AddAndGetContext(t *testing.T) {
	m := New()
	m.AddUserMessage(1, "what happened yesterday?", "alice")
	m.AddAssistantMessage(1, "nothing much.")

	ctx := m.GetContext(1, 10)
	if ctx == "" {
		t.Fatal("expected non-empty context after adding messages")
	}
}

func TestMemory_ChannelsAreIsolated(t *testing.T) {
	m := New()
	m.AddUserMessage(1, "channel one message", "alice")
	m.AddUserMessage(2, "channel two message", "bob")

	ctxOne := m.GetContext(1, 10)
	ctxTwo := m.GetContext(2, 10)
	if ctxOne == ctxTwo {
		t.Error("expected distinct channels to have distinct context")
	}
}

func TestMemory_CapsAtMaxExchanges(t *testing.T) {
	m := New()
	for i := 0; i < maxExchanges+10; i++ {
		m.AddUserMessage(1, "message", "alice")
	}
	s := m.sessions[1]
	if len(s.exchanges) != maxExchanges {
		t.Errorf("expected ring buffer capped at %d, got %d", maxExchanges, len(s.exchanges))
	}
}

func TestMemory_ClearChannel(t *testing.T) {
	m := New()
	m.AddUserMessage(1, "hello", "alice")
	m.ClearChannel(1)
	if ctx := m.GetContext(1, 10); ctx != "" {
		t.Errorf("expected empty context after clear, got %q", ctx)
	}
}

func TestMemory_UnknownChannelReturnsEmpty(t *testing.T) {
	m := New()
	if ctx := m.GetContext(42, 10); ctx != "" {
		t.Errorf("expected empty context for unknown channel, got %q", ctx)
	}
}
