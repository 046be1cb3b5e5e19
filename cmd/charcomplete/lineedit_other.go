//go:build !linux

package main

// Without termios support the REPL reads whole lines and Tab has no effect.
func readInteractiveLine(_ *lineEditor, _ string, _ func(string) string) (string, error) {
	return readPlainLine()
}
