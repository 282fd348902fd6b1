package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/modelstation/modelstation/internal/client"
)

const (
	defaultAPIURL = "http://localhost:8080"
	envAPIURL     = "MODELSTATION_API_URL"
	envSession    = "MODELSTATION_SESSION_FILE"
)

// app carries the command dependencies. Tests replace the terminal
// functions and the store.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	readPassword func(fd int) ([]byte, error)
	isTerminal   func(fd int) bool
	newStore     func(path string) (client.Store, error)

	apiURL      string
	sessionFile string
	verbose     bool

	reader *bufio.Reader
}

func newApp() *app {
	return &app{
		in:           os.Stdin,
		out:          os.Stdout,
		errOut:       os.Stderr,
		readPassword: term.ReadPassword,
		isTerminal:   term.IsTerminal,
		newStore: func(path string) (client.Store, error) {
			if path == "" {
				p, err := client.DefaultSessionPath()
				if err != nil {
					return nil, err
				}
				path = p
			}
			return client.NewFileStore(path), nil
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "modelctl",
		Short: "Manage your ModelStation account and models",
		Long: `modelctl signs in to a ModelStation API server and manages the
models owned by the signed-in account. The session is kept in the user
config directory between runs.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	apiURL := os.Getenv(envAPIURL)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", apiURL, "API server base URL (env "+envAPIURL+")")
	root.PersistentFlags().StringVar(&a.sessionFile, "session-file", os.Getenv(envSession), "session file path (env "+envSession+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log client diagnostics to stderr")

	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.AddCommand(
		loginCmd(a),
		registerCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		modelsCmd(a),
	)
	return root
}

// client builds an API client and restores any saved session.
func (a *app) client() (*client.Client, error) {
	store, err := a.newStore(a.sessionFile)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))

	c, err := client.New(a.apiURL, client.WithStore(store), client.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if _, err := c.Restore(); err != nil && !errors.Is(err, client.ErrNoSession) {
		logger.Warn("ignoring unreadable session", "error", err)
	}
	return c, nil
}

// signedIn returns a client that holds a session.
func (a *app) signedIn() (*client.Client, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	if c.Session() == nil {
		return nil, errors.New("not signed in, run `modelctl login` first")
	}
	return c, nil
}

func (a *app) lineReader() *bufio.Reader {
	if a.reader == nil {
		a.reader = bufio.NewReader(a.in)
	}
	return a.reader
}

// prompt reads a single trimmed line after printing label.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprintf(a.errOut, "%s: ", label)
	line, err := a.lineReader().ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func (a *app) promptPassword(label string) (string, error) {
	if f, ok := a.in.(*os.File); ok && a.isTerminal(int(f.Fd())) {
		fmt.Fprintf(a.errOut, "%s: ", label)
		pw, err := a.readPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}
	line, err := a.prompt(label)
	if err != nil {
		return "", err
	}
	return line, nil
}

// valueOrPrompt returns v or asks for it when empty.
func (a *app) valueOrPrompt(v, label string, secret bool) (string, error) {
	if v != "" {
		return v, nil
	}
	if secret {
		return a.promptPassword(label)
	}
	return a.prompt(label)
}
