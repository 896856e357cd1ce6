package acpbridge

import (
	"context"
	"reflect"
	"testing"

	acpsdk "github.com/coder/acp-go-sdk"

	"github.com/workspace/agentcore/approval"
	"github.com/workspace/agentcore/eventlog"
)

func TestSessionUpdateAppendsOutputEvent(t *testing.T) {
	store := eventlog.New("acpbridge", 0)
	c := newClient("sess-1", "acpbridge", store, approval.AutoApprove)

	if err := c.SessionUpdate(context.Background(), acpsdk.SessionNotification{}); err != nil {
		t.Fatalf("SessionUpdate: %v", err)
	}

	snap := store.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d events, want 1", len(snap))
	}
	if snap[0].Type != eventlog.EntryOutput {
		t.Fatalf("got type %v, want EntryOutput", snap[0].Type)
	}
}

func TestRequestPermissionCancelledWhenNoOptionsOffered(t *testing.T) {
	store := eventlog.New("acpbridge", 0)
	c := newClient("sess-1", "acpbridge", store, approval.AutoApprove)

	resp, err := c.RequestPermission(context.Background(), acpsdk.RequestPermissionRequest{})
	if err != nil {
		t.Fatalf("RequestPermission: %v", err)
	}
	if !reflect.DeepEqual(resp.Outcome, acpsdk.NewRequestPermissionOutcomeCancelled()) {
		t.Fatalf("got outcome %+v, want cancelled", resp.Outcome)
	}
}

func TestSetSessionIDUpdatesCurrentSessionID(t *testing.T) {
	store := eventlog.New("acpbridge", 0)
	c := newClient("", "acpbridge", store, approval.AutoApprove)
	c.setSessionID("resolved-session")
	if got := c.currentSessionID(); got != "resolved-session" {
		t.Fatalf("got %q, want resolved-session", got)
	}
}

func TestReadTextFileNotSupported(t *testing.T) {
	store := eventlog.New("acpbridge", 0)
	c := newClient("sess-1", "acpbridge", store, approval.AutoApprove)
	if _, err := c.ReadTextFile(context.Background(), acpsdk.ReadTextFileRequest{}); err == nil {
		t.Fatal("expected ReadTextFile to report unsupported")
	}
}
