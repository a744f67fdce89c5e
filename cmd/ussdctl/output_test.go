package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestPrintChecks(t *testing.T) {
	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetOut(out)

	err := printChecks(cmd, map[string]error{"MPESA": nil, "BIM": errors.New("timeout")})
	if !errors.Is(err, errPartnersDown) {
		t.Fatalf("expected errPartnersDown, got %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "BIM") || !strings.Contains(lines[1], "timeout") {
		t.Fatalf("unexpected table:\n%s", out.String())
	}

	out.Reset()
	if err := printChecks(cmd, map[string]error{"BIM": nil}); err != nil {
		t.Fatalf("all ok must not fail: %v", err)
	}
}
