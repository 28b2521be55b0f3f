package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sso/internal/sso/app"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, app.BuildVersion+"\n", out.String())
}

func TestCommandsRegistered(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"serve", "create-root-key", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.Equal(t, name, sub.Name())
		})
	}
}
