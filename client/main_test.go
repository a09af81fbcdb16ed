package main

import (
	"testing"

	"github.com/wfunc/tagserver/network"
)

func TestCommand(t *testing.T) {
	cases := []struct {
		line  string
		msgID uint16
	}{
		{"create 25", network.MsgTypeCreateGame},
		{"join abc234", network.MsgTypeJoinGame},
		{"leave", network.MsgTypeLeaveGame},
		{"start", network.MsgTypeStartGame},
		{"end", network.MsgTypeEndGame},
		{"get", network.MsgTypeGetGame},
		{"loc 35.0 139.0", network.MsgTypeLocation},
		{"tag bob", network.MsgTypeTag},
		{"check 35 139 35.0001 139 20", network.MsgTypeCheckTag},
	}
	for _, c := range cases {
		msgID, _, ok := command(c.line)
		if !ok || msgID != c.msgID {
			t.Errorf("command(%q) = %d, %v; want %d", c.line, msgID, ok, c.msgID)
		}
	}

	if _, _, ok := command("dance"); ok {
		t.Error("Unknown command should not parse")
	}
	if _, _, ok := command("   "); ok {
		t.Error("Blank line should not parse")
	}

	_, req, _ := command("join abc234")
	if req.(map[string]string)["code"] != "ABC234" {
		t.Errorf("Join code should be upper-cased, got %v", req)
	}
}
