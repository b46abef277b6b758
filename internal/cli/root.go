package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"readshift/internal/config"
	"readshift/internal/util"
)

type runner struct {
	configPath string
	verbose    bool

	out    io.Writer
	errOut io.Writer
	prompt Prompter

	app       *App
	logCloser io.Closer
}

// Run executes one command line and releases the store and log file it
// opened, whether or not the command failed.
func Run(ctx context.Context, args []string, out, errOut io.Writer, prompt Prompter) error {
	r, root := newRoot(out, errOut, prompt)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, r.teardown())
}

// newRoot builds the command tree. Output goes to out and errOut; prompt
// answers interactive questions.
func newRoot(out, errOut io.Writer, prompt Prompter) (*runner, *cobra.Command) {
	r := &runner{out: out, errOut: errOut, prompt: prompt}
	root := &cobra.Command{
		Use:   "readshift",
		Short: "Read, highlight and discuss your books from the terminal",
		Long: `ReadShift is a client for the ReadShift reading service.

It keeps your session, reads extracted books chapter by chapter, keeps
highlights in sync even while offline and lets you chat about a book.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: r.setup,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&r.configPath, "config", "", "config file path (default "+config.DefaultPath()+")")
	root.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "mirror logs to stderr")

	root.AddCommand(
		r.registerCmd(), r.loginCmd(), r.logoutCmd(), r.whoamiCmd(), r.profileCmd(),
		r.verifyEmailCmd(), r.sendVerificationCmd(), r.resetPasswordCmd(), r.oauthCmd(), r.statusCmd(),
		r.booksCmd(), r.pdfCmd(),
		r.readCmd(), r.highlightCmd(), r.bookmarkCmd(), r.syncCmd(),
		r.chatCmd(),
		r.serveCmd(),
	)
	return r, root
}

// Execute runs the CLI against the real terminal and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := Run(ctx, os.Args[1:], os.Stdout, os.Stderr, TerminalPrompter{}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (r *runner) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return err
	}
	_, r.logCloser = util.InitLogger(cfg.LogOptions(r.verbose))
	ctx, _ := util.EnsureRequestID(cmd.Context())
	cmd.SetContext(ctx)
	util.LoggerFromContext(ctx).Debug("command started", "command", cmd.CommandPath())

	r.app, err = NewApp(ctx, cfg, r.out, r.errOut, r.prompt)
	return err
}

func (r *runner) teardown() error {
	var err error
	if r.app != nil {
		err = r.app.Close()
		r.app = nil
	}
	if r.logCloser != nil {
		_ = r.logCloser.Close()
		r.logCloser = nil
	}
	return err
}

func (r *runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *runner) println(args ...any) {
	fmt.Fprintln(r.out, args...)
}

// password returns the flag value or prompts for it.
func (r *runner) password(flag, label string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	return r.prompt.Password(label)
}

// confirm skips the question when yes is set.
func (r *runner) confirm(yes bool, label string) (bool, error) {
	if yes {
		return true, nil
	}
	return r.prompt.Confirm(label)
}

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, raw)
	}
	return id, nil
}
