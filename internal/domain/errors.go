package domain

import "github.com/flowkit/flowcore/internal/acterr"

func modelErr(format string, args ...any) error {
	return acterr.Model(format, args...)
}

func runtimeErr(format string, args ...any) error {
	return acterr.Runtime(format, args...)
}
