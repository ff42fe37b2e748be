package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-campus-session/internal/config"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

const usage = `usage: campus-session <command> [flags]

commands:
  login    sign in with -email and -password (password is read from stdin when omitted)
  whoami   print the signed in user's profile from the API
  status   print the local session state
  logout   sign out and clear the local session
  watch    keep the session fresh and serve /metrics and /healthz
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	if len(args) == 0 {
		return errUsage
	}
	if err := config.Load(); err != nil {
		return err
	}
	c := config.New()
	setupLogging(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c, stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest, stdin)
	case "whoami":
		return a.whoami(ctx)
	case "status":
		return a.status(ctx)
	case "logout":
		return a.logout(ctx)
	case "watch":
		displayAppname(c.GetAppName())
		return a.watch(ctx, rest)
	default:
		return errUsage
	}
}

var errUsage = errors.New(usage)

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// describe turns an error into what the user reads: session failures get the
// user facing copy, everything else its own text.
func describe(err error) string {
	for _, class := range []error{
		sessionmodel.ErrNetworkUnreachable,
		sessionmodel.ErrRejected,
		sessionmodel.ErrAuthExpired,
		sessionmodel.ErrPartialLoginWrite,
		sessionmodel.ErrInvalidInput,
		sessionmodel.ErrUnknown,
	} {
		if errors.Is(err, class) {
			return sessionmodel.UserMessage(err)
		}
	}
	return err.Error()
}

func readPassword(stdin io.Reader, stdout io.Writer) (string, error) {
	fmt.Fprint(stdout, "Password: ")
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
