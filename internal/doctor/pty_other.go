//go:build !unix

package doctor

func checkPTY() Result {
	return Result{Status: StatusFail, Message: "Terminal sessions require a unix host"}
}
