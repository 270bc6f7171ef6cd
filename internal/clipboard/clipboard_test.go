package clipboard

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stub(t *testing.T, missing bool, err error) *string {
	t.Helper()
	var got string
	origWrite, origUnsupported := writeAll, unsupported
	writeAll = func(text string) error {
		got = text
		return err
	}
	unsupported = func() bool { return missing }
	t.Cleanup(func() {
		writeAll, unsupported = origWrite, origUnsupported
	})
	return &got
}

func TestUnavailableError(t *testing.T) {
	err := newUnavailableError()

	assert.Equal(t, runtime.GOOS, err.GOOS)
	assert.Contains(t, err.Error(), "clipboard unavailable on "+runtime.GOOS)
	assert.Contains(t, err.Error(), err.Hint)
}

func TestCopyWritesText(t *testing.T) {
	got := stub(t, false, nil)

	msg, err := CopyWithFallback("<p>Ayşe Yılmaz</p>")
	require.NoError(t, err)
	assert.Equal(t, CopiedMessage, msg)
	assert.Equal(t, "<p>Ayşe Yılmaz</p>", *got)
	assert.True(t, Available())
}

func TestCopyWithoutProgram(t *testing.T) {
	got := stub(t, true, nil)

	_, err := CopyWithFallback("text")
	var unavailable *UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Empty(t, *got)
	assert.False(t, Available())
}

func TestCopyWrapsWriteFailure(t *testing.T) {
	stub(t, false, errors.New("exit status 1"))

	_, err := CopyWithFallback("text")
	require.Error(t, err)
	assert.Equal(t, "clipboard write: exit status 1", err.Error())
}

func TestInstallHint(t *testing.T) {
	hint := InstallHint()

	switch runtime.GOOS {
	case "linux":
		assert.Contains(t, hint, "xclip")
		assert.Contains(t, hint, "wl-clipboard")
	case "darwin":
		assert.Contains(t, hint, "pbcopy")
	default:
		assert.NotEmpty(t, hint)
	}
}
