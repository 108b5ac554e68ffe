// Package shell provides the interactive tplot prompt.
//
// On a terminal the shell uses go-prompt with completion of commands,
// flags and variable names. Otherwise it reads one command per line, so
// that scripts can be piped in.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/logging"
)

var log = logging.Component("shell")

// Executor runs one command line, already split into arguments.
type Executor func(ctx context.Context, args []string) error

// Command describes a command for completion.
type Command struct {
	Name        string
	Description string
	Flags       []prompt.Suggest
	Subcommands []Command
}

// Config configures a Shell.
type Config struct {
	// Prefix is the prompt string.
	Prefix string

	// Commands are completed at the start of a line.
	Commands []Command

	// Names returns the variable names to complete.
	Names func() []string

	// In is read when it is not a terminal. Defaults to os.Stdin.
	In io.Reader

	// ErrOut receives parse errors. Defaults to os.Stderr.
	ErrOut io.Writer
}

// Shell reads and executes command lines.
type Shell struct {
	cfg  Config
	exec Executor
	quit bool

	lines  int
	failed int
}

// New creates a shell that runs lines with exec.
func New(exec Executor, cfg Config) *Shell {
	if cfg.Prefix == "" {
		cfg.Prefix = "tplot> "
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.ErrOut == nil {
		cfg.ErrOut = os.Stderr
	}
	if cfg.Names == nil {
		cfg.Names = func() []string { return nil }
	}
	sort.Slice(cfg.Commands, func(i, j int) bool { return cfg.Commands[i].Name < cfg.Commands[j].Name })
	return &Shell{cfg: cfg, exec: exec}
}

// Run reads lines until exit, end of input or cancellation. In script mode
// the first failed line's error is returned after all lines ran.
func (s *Shell) Run(ctx context.Context) error {
	if f, ok := s.cfg.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return s.interactive(ctx)
	}
	return s.script(ctx, s.cfg.In)
}

func (s *Shell) interactive(ctx context.Context) error {
	p := prompt.New(
		func(line string) { s.Execute(ctx, line) },
		s.Complete,
		prompt.OptionPrefix(s.cfg.Prefix),
		prompt.OptionTitle("tplot"),
		prompt.OptionMaxSuggestion(12),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			return s.quit || ctx.Err() != nil
		}),
	)
	p.Run()
	log.Debug("shell closed", "lines", s.lines, "failed", s.failed)
	return nil
}

func (s *Shell) script(ctx context.Context, r io.Reader) error {
	var first error
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Execute(ctx, sc.Text()); err != nil && first == nil {
			first = err
		}
		if s.quit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	log.Debug("script finished", "lines", s.lines, "failed", s.failed)
	return first
}

// Execute runs one line. Blank lines and # comments are skipped; "exit"
// and "quit" end the shell.
func (s *Shell) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	args, err := Split(line)
	if err != nil {
		fmt.Fprintf(s.cfg.ErrOut, "Error: %v\n", err)
		s.failed++
		return err
	}
	switch args[0] {
	case "exit", "quit":
		s.quit = true
		return nil
	}

	s.lines++
	if err := s.exec(ctx, args); err != nil {
		s.failed++
		return err
	}
	return nil
}

// =============================================================================
// Completion
// =============================================================================

// Complete returns suggestions for the word before the cursor: commands
// first, then subcommands, flags and variable names.
func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	word := d.GetWordBeforeCursor()
	fields := strings.Fields(before)
	if word != "" && len(fields) > 0 {
		fields = fields[:len(fields)-1]
	}

	if len(fields) == 0 {
		return prompt.FilterHasPrefix(commandSuggests(s.cfg.Commands), word, true)
	}

	cmd, ok := find(s.cfg.Commands, fields[0])
	if !ok {
		return nil
	}
	if len(cmd.Subcommands) > 0 {
		if len(fields) == 1 {
			return prompt.FilterHasPrefix(commandSuggests(cmd.Subcommands), word, true)
		}
		if sub, ok := find(cmd.Subcommands, fields[1]); ok {
			cmd = sub
		}
	}

	if strings.HasPrefix(word, "-") {
		return prompt.FilterHasPrefix(cmd.Flags, word, true)
	}
	names := s.cfg.Names()
	out := make([]prompt.Suggest, len(names))
	for i, n := range names {
		out[i] = prompt.Suggest{Text: n, Description: "variable"}
	}
	return prompt.FilterHasPrefix(out, word, false)
}

func commandSuggests(cmds []Command) []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(cmds)+2)
	for _, c := range cmds {
		out = append(out, prompt.Suggest{Text: c.Name, Description: c.Description})
	}
	return out
}

func find(cmds []Command, name string) (Command, bool) {
	for _, c := range cmds {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// =============================================================================
// Line splitting
// =============================================================================

// Split breaks line into arguments. Single quotes keep their content
// literally; double quotes allow \" and \\ escapes; a backslash outside
// quotes escapes the next character.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == '\\':
			escaped = true
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "trailing backslash")
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
