// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command similarity finds structurally similar functions, types, and
// code fragments in TypeScript and JavaScript sources.
//
// Usage:
//
//	similarity [paths...] [flags]
//
// Examples:
//
//	# Function duplicates in the current directory
//	similarity
//
//	# Functions and types, failing CI when anything is found
//	similarity src --types --fail-on-duplicates
//
//	# Overlapping fragments only, printed with their code
//	similarity src --no-functions --overlap --print
//
//	# Machine-readable output
//	similarity src --format json
//
// Exit status is 0 on success, 1 when --fail-on-duplicates finds
// duplicates or no analyzer is enabled, and 2 on any other error.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}
