package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/newport/internal/services"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestInvitesSign(t *testing.T) {
	out, err := run(t, invitesCmd(), "sign", "inv-1", "1700000000000", "--secret", "invite-secret")
	require.NoError(t, err)
	assert.Equal(t, "350ff3011ac7275f", out)
}

func TestInvitesVerify(t *testing.T) {
	out, err := run(t, invitesCmd(), "verify", "inv-1", "1700000000000", "350ff3011ac7275f", "--secret", "invite-secret")
	require.NoError(t, err)
	assert.Contains(t, out, "valid but expired")

	_, err = run(t, invitesCmd(), "verify", "inv-1", "1700000000001", "350ff3011ac7275f", "--secret", "invite-secret")
	assert.Error(t, err)
}

func TestInvitesSignRequiresSecret(t *testing.T) {
	t.Setenv("INVITE_SECRET", "")

	_, err := run(t, invitesCmd(), "sign", "inv-1", "1700000000000")
	assert.ErrorContains(t, err, "no signing secret")
}

func TestPaymentsKey(t *testing.T) {
	out, err := run(t, paymentsCmd(), "key", "user-1", "850000", "--day", "2026-03-14")
	require.NoError(t, err)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, services.IdempotencyKey("user-1", 850000, "utility", day), out)

	_, err = run(t, paymentsCmd(), "key", "user-1", "lots")
	assert.Error(t, err)
}
