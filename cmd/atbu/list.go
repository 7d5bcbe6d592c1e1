package main

import (
	"context"
	"fmt"
	"os"
)

// cmdList implements `list <selectors...>` (spec.md §6): resolves the
// selection exactly as restore/verify do and prints the matching files,
// without touching the object store at all.
func cmdList(ctx context.Context, args []string) int {
	fs := newFlagSet("list")
	if err := fs.Parse(args); err != nil {
		return exitAnomaly
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "list: need at least one selector")
		return exitAnomaly
	}

	sel, sourceDir, err := parseSelectors(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		return exitAnomaly
	}

	_, _, bfis, err := resolveSelection(ctx, sourceDir, sel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		return exitAnomaly
	}

	for _, bfi := range bfis {
		state := "ok"
		if !bfi.IsSuccessful {
			state = "failed"
		} else if bfi.IsUnchangedSinceLast {
			state = "unchanged"
		}
		fmt.Printf("%s\t%d\t%s\n", state, bfi.SizeInBytes, bfi.PathWithoutRoot)
	}
	return exitSuccess
}
