package options

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/mcprt/internal/config"
	"github.com/mozilla-ai/mcprt/internal/daemon"
)

type fakeLoader struct {
	config.Loader
}

type fakeInitializer struct {
	config.Initializer
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()

	require.NotNil(t, opts.ConfigLoader)
	require.NotNil(t, opts.ConfigInitializer)
	require.Equal(t, os.Stdin, opts.Stdin)
	require.Equal(t, os.Stdout, opts.Stdout)
	require.Empty(t, opts.DaemonOptions)
}

func TestNewOptions_WithOverrides(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	initializer := &fakeInitializer{}
	in := strings.NewReader("")
	out := &bytes.Buffer{}

	opts, err := NewOptions(
		WithConfigLoader(loader),
		WithConfigInitializer(initializer),
		WithStdio(in, out),
		WithDaemonOptions(daemon.WithMaxRestarts(0)),
		WithDaemonOptions(daemon.WithBuiltinHandlers(false)),
	)
	require.NoError(t, err)

	require.Equal(t, loader, opts.ConfigLoader)
	require.Equal(t, initializer, opts.ConfigInitializer)
	require.Equal(t, in, opts.Stdin)
	require.Equal(t, out, opts.Stdout)
	require.Len(t, opts.DaemonOptions, 2)
}

func TestNewOptions_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewOptions(WithConfigLoader(nil))
	require.EqualError(t, err, "config loader cannot be nil")

	_, err = NewOptions(WithConfigInitializer(nil))
	require.EqualError(t, err, "config initializer cannot be nil")

	_, err = NewOptions(WithStdio(nil, &bytes.Buffer{}))
	require.EqualError(t, err, "stdio streams cannot be nil")
}

func TestNewOptions_WithNilOption(t *testing.T) {
	t.Parallel()

	opts, err := NewOptions(nil)
	assert.NoError(t, err)
	require.NotNil(t, opts.ConfigLoader)
}

func TestNewOptions_WithFailingOption(t *testing.T) {
	t.Parallel()

	badOpt := func(*CmdOptions) error {
		return errors.New("fail")
	}

	_, err := NewOptions(badOpt)
	require.ErrorContains(t, err, "fail")
}
