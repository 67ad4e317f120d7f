//go:build !rp2040

// Package fmtx is the formatting subset the control plane uses. Host builds
// forward to fmt; MCU builds use a small allocation-light formatter.
package fmtx

import "fmt"

func Sprintf(format string, a ...any) string { return fmt.Sprintf(format, a...) }
func Errorf(format string, a ...any) error   { return fmt.Errorf(format, a...) }
func Sprint(a ...any) string                 { return fmt.Sprint(a...) }
