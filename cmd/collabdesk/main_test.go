package main

import (
	"bufio"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/collabdesk/collabdesk/internal/config"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("COLLABDESK_TEST_VALUE", "  http://gw:8080/api  ")
	if got := envOrDefault("COLLABDESK_TEST_VALUE", "fallback"); got != "http://gw:8080/api" {
		t.Fatalf("expected trimmed env value, got %q", got)
	}
	if got := envOrDefault("COLLABDESK_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestPromptConfirm(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "whatever\n", want: false},
	}
	for _, tc := range cases {
		a := &app{stdin: bufio.NewReader(strings.NewReader(tc.input))}
		if got := a.promptConfirm("proceed?"); got != tc.want {
			t.Fatalf("input %q: got %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestDialFuncFollowsTransportSetting(t *testing.T) {
	a := &app{cfg: config.Default(), logger: zerolog.Nop()}
	if a.dialFunc() == nil {
		t.Fatalf("expected a dialer for the default transport")
	}
	a.cfg.Transport = "websocket"
	if a.dialFunc() == nil {
		t.Fatalf("expected a dialer for the websocket transport")
	}
}
