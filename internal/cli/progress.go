package cli

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// StartSpinner shows a spinner with message on w until the returned stop
// function is called. When quiet is set nothing is shown.
func StartSpinner(w io.Writer, quiet bool, message string) (stop func(final string)) {
	if quiet {
		return func(string) {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	s.Start()
	return func(final string) {
		if final != "" {
			s.FinalMSG = final + "\n"
		}
		s.Stop()
	}
}
