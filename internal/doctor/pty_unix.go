//go:build unix

package doctor

import "github.com/creack/pty"

func checkPTY() Result {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: "Cannot allocate a pseudo-terminal",
			Detail:  err.Error(),
		}
	}

	name := tty.Name()
	_ = tty.Close()
	_ = ptmx.Close()

	return Result{Status: StatusPass, Message: name}
}
