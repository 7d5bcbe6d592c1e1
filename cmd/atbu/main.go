// Command atbu is a thin host process over the atbu-go core: it resolves
// CLI arguments into the already-typed options each package expects
// (orchestrator.Options, retrieval.Options, selection.Selectors) and
// invokes them. Full CLI UX — config files, keyring/YubiKey credential
// lookup, shell completion — remains an external collaborator per spec.md
// §1 Non-goals; this binary exists to drive the core end-to-end, not to be
// a polished user-facing tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// Exit codes spec.md §6 assigns to the backup operation; restore/verify/
// decrypt/recover/list use 0 (success) and 1 (failure) only.
const (
	exitSuccess = 0
	exitAnomaly = 1
	exitDryRun  = 99
)

type subcmd func(ctx context.Context, args []string) int

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := log.WithContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	cmds := map[string]subcmd{
		"backup":  cmdBackup,
		"restore": cmdRestore,
		"verify":  cmdVerify,
		"decrypt": cmdDecrypt,
		"recover": cmdRecover,
		"list":    cmdList,
	}

	if len(os.Args) < 2 {
		usage(cmds)
		os.Exit(exitDryRun)
	}
	cmd, ok := cmds[os.Args[1]]
	if !ok {
		usage(cmds)
		fmt.Fprintf(os.Stderr, "\nunknown subcommand %q\n", os.Args[1])
		os.Exit(exitDryRun)
	}
	os.Exit(cmd(ctx, os.Args[2:]))
}

func usage(cmds map[string]subcmd) {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags] [args...]\n\nCommands:\n", os.Args[0])
	for _, name := range []string{"backup", "restore", "verify", "decrypt", "recover", "list"} {
		if _, ok := cmds[name]; ok {
			fmt.Fprintf(os.Stderr, "  %s\n", name)
		}
	}
}

// newFlagSet builds a flag.FlagSet for subcommand name that reports errors
// to the caller rather than exiting the process directly, so a subcommand
// can translate a parse failure into the right exit code.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}
