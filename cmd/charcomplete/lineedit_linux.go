//go:build linux

package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// readInteractiveLine edits one line in raw mode. suggest is called on Tab
// and returns the ghost text to show, or "" when there is nothing to offer.
func readInteractiveLine(ed *lineEditor, prompt string, suggest func(string) string) (string, error) {
	if !stdinIsTTY() {
		return readPlainLine()
	}

	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	newState := *oldState
	newState.Lflag &^= unix.ICANON | unix.ECHO | unix.ISIG
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &newState); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	out := os.Stdout
	ed.reset()
	_, _ = fmt.Fprint(out, ed.render(prompt))

	var dec keyDecoder
	var buf [32]byte
	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for i := range n {
			k, ok := dec.feed(buf[i])
			if !ok {
				continue
			}
			switch ed.handle(k) {
			case actionRedraw:
				_, _ = fmt.Fprint(out, ed.render(prompt))
			case actionSuggest:
				s := suggest(ed.text())
				if s == "" {
					_, _ = fmt.Fprint(out, "\a")
					continue
				}
				ed.setSuggestion(s)
				_, _ = fmt.Fprint(out, ed.render(prompt))
			case actionSubmit:
				_, _ = fmt.Fprint(out, ed.render(prompt), "\r\n")
				return ed.text(), nil
			case actionQuit:
				_, _ = fmt.Fprint(out, "\r\n")
				return "", io.EOF
			}
		}
	}
}
