// Package clipboard copies filled documents to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/atotto/clipboard"
)

// CopiedMessage is the status shown after a successful copy.
const CopiedMessage = "Document copied to clipboard"

// writeAll is swapped out in tests
var writeAll = clipboard.WriteAll

var unsupported = func() bool { return clipboard.Unsupported }

// UnavailableError is returned when the platform has no clipboard program.
type UnavailableError struct {
	GOOS string
	Hint string
}

func (e *UnavailableError) Error() string {
	return "clipboard unavailable on " + e.GOOS + ": " + e.Hint
}

func newUnavailableError() *UnavailableError {
	return &UnavailableError{GOOS: runtime.GOOS, Hint: InstallHint()}
}

// Copy writes text to the system clipboard.
func Copy(text string) error {
	if unsupported() {
		return newUnavailableError()
	}
	return writeAll(text)
}

// CopyWithFallback copies text and returns the status line to show. Callers
// fall back to printing the text when it fails.
func CopyWithFallback(text string) (string, error) {
	err := Copy(text)
	if err == nil {
		return CopiedMessage, nil
	}
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return "", err
	}
	return "", fmt.Errorf("clipboard write: %w", err)
}

// Available reports whether a clipboard program was found.
func Available() bool {
	return !unsupported()
}

// InstallHint names the program atotto/clipboard needs on this platform.
func InstallHint() string {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "install xclip or xsel (X11) or wl-clipboard (Wayland)"
	case "darwin":
		return "pbcopy ships with macOS, check that it is on PATH"
	case "windows":
		return "the Windows clipboard API should always be present"
	default:
		return "no supported clipboard program for " + runtime.GOOS
	}
}
