// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	titleColor   = color.New(color.FgMagenta, color.Bold)
)

func printSuccess(format string, args ...any) {
	successColor.Printf(format+"\n", args...)
}

func printError(format string, args ...any) {
	errorColor.Printf(format+"\n", args...)
}

func printWarning(format string, args ...any) {
	warnColor.Printf("warning: "+format+"\n", args...)
}

func printInfo(format string, args ...any) {
	infoColor.Printf(format+"\n", args...)
}

func printTitle(format string, args ...any) {
	titleColor.Printf(format+"\n", args...)
}

func printSeparator() {
	fmt.Println(strings.Repeat("-", 72))
}
