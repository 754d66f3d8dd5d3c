package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// stdinFd is the descriptor readPassword reads from.
var stdinFd = func() int { return int(os.Stdin.Fd()) }

// GetKey prints prompt to w and reads a folder key without echo. A newline
// is printed after the read to keep the terminal tidy.
func GetKey(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	key, err := readPassword(stdinFd())
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	key = bytes.TrimSpace(key)
	if len(key) == 0 {
		return "", errors.New("empty key")
	}
	return string(key), nil
}

// GetNewKey asks for a key twice and fails when the entries differ.
func GetNewKey(w io.Writer) (string, error) {
	first, err := GetKey(w, "New folder key: ")
	if err != nil {
		return "", err
	}
	second, err := GetKey(w, "Repeat folder key: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("keys do not match")
	}
	return first, nil
}
