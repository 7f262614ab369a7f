package cli

import (
	"errors"

	"github.com/nace/ddrmount/internal/fault"
	"github.com/nace/ddrmount/internal/ui"
)

// Report prints err and returns the process exit status for it. Errors
// that carry no kind come from argument parsing.
func Report(logger *ui.Logger, err error) int {
	if err == nil {
		return 0
	}

	var rep fault.Reporter
	if errors.As(err, &rep) {
		rep.Report(logger.Writer(), !logger.NoColor)
	} else {
		logger.Failure(err.Error())
	}

	var f *fault.Error
	if !errors.As(err, &f) {
		return fault.Argument.ExitCode()
	}
	return f.Kind.ExitCode()
}
