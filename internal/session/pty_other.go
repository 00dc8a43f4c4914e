//go:build !unix

package session

import "errors"

// StartPTY is unavailable on this platform.
func StartPTY(SpawnRequest) (PTY, error) {
	return nil, errors.New("pty sessions are not supported on this platform")
}
