package cli

import (
	"fmt"
	"os"

	"github.com/jvs-project/taleforge/pkg/color"
)

// requireApp loads the shared app singleton or exits with an error.
func requireApp() *app {
	a, err := loadApp()
	if err != nil {
		fmtErr("load app: %v", err)
		os.Exit(1)
	}
	return a
}

func fmtErr(format string, args ...any) {
	prefix := "taleforge: "
	if color.Enabled() {
		prefix = color.Error("taleforge:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}

func fmtWarn(format string, args ...any) {
	prefix := "taleforge: warning: "
	if color.Enabled() {
		prefix = color.Warning("taleforge: warning:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
