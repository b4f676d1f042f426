package main

import (
	"testing"

	docopt "github.com/docopt/docopt-go"
	"github.com/stretchr/testify/require"
)

func TestUsageRepeatedDestinations(t *testing.T) {
	args, err := docopt.ParseArgs(usage, []string{
		"--backup-path=/a", "--backup-path=/b",
		"--remote-path=root@h:/x/",
		"--limit=1m",
	}, version)
	require.NoError(t, err)
	require.Equal(t, []string{"/a", "/b"}, args["--backup-path"])
	require.Equal(t, []string{"root@h:/x/"}, args["--remote-path"])
	require.Equal(t, "1m", args["--limit"])
	require.Equal(t, "prod", args["--log"])
	require.Equal(t, "info", args["--log-level"])
	require.Equal(t, "5s", args["--lock-wait"])
}

func TestUsageNoDestinations(t *testing.T) {
	args, err := docopt.ParseArgs(usage, []string{"--log=mu"}, version)
	require.NoError(t, err)
	require.Empty(t, stringsArg(args, "--backup-path"))
	require.Nil(t, args["--config"])
}
