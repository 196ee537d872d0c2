// Package bots runs tengo bot scripts for the reference backend and streams
// their output as bot_log lines.
package bots

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/spf13/afero"

	"github.com/nfrund/livedash/internal/domain"
)

// ErrAlreadyRunning is returned by Start for a script that has not finished.
var ErrAlreadyRunning = errors.New("bot already running")

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 5 * time.Minute

// Extension is the file suffix of bot scripts.
const Extension = ".tengo"

var namePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// allowedModules are the tengo stdlib modules scripts may import.
var allowedModules = []string{"fmt", "text", "times", "math", "rand", "json"}

// EmitFunc receives one line of script output.
type EmitFunc func(script, output string)

// Runner starts bot scripts found in one directory.
type Runner struct {
	fs      afero.Fs
	dir     string
	emit    EmitFunc
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a runner reading <dir>/<name>.tengo from fsys.
func New(fsys afero.Fs, dir string, emit EmitFunc, opts ...Option) *Runner {
	r := &Runner{
		fs:      fsys,
		dir:     dir,
		emit:    emit,
		timeout: DefaultTimeout,
		logger:  slog.Default().With("component", "bots"),
		running: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Available lists the scripts in the directory, sorted.
func (r *Runner) Available() ([]string, error) {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list bots: %w", err)
	}
	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), Extension)
		if ok && !e.IsDir() && namePattern.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Start compiles the script and runs it in the background. Compile errors are
// returned and also emitted; runtime errors are emitted as the last line.
func (r *Runner) Start(ctx context.Context, name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("bot %q: %w", name, domain.ErrInvalidPayload)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("bot %s: runner closed", name)
	}
	if _, busy := r.running[name]; busy {
		r.mu.Unlock()
		return fmt.Errorf("bot %s: %w", name, ErrAlreadyRunning)
	}
	// Reserve the name while compiling.
	r.running[name] = func() {}
	r.mu.Unlock()

	compiled, err := r.compile(name)
	if err != nil {
		r.release(name)
		if !errors.Is(err, domain.ErrNotFound) {
			r.emit(name, "error: "+err.Error())
		}
		return err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	r.mu.Lock()
	r.running[name] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(name)
		defer cancel()

		start := time.Now()
		r.logger.Info("Bot started", "script", name)
		if err := compiled.RunContext(runCtx); err != nil {
			r.logger.Warn("Bot failed", "script", name, "error", err)
			r.emit(name, "error: "+err.Error())
			return
		}
		r.logger.Info("Bot finished", "script", name, "duration", time.Since(start))
	}()
	return nil
}

func (r *Runner) compile(name string) (*tengo.Compiled, error) {
	src, err := afero.ReadFile(r.fs, path.Join(r.dir, name+Extension))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("bot %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read bot %s: %w", name, err)
	}

	script := tengo.NewScript(src)
	script.SetImports(stdlib.GetModuleMap(allowedModules...))
	if err := script.Add("bot_name", name); err != nil {
		return nil, fmt.Errorf("bot %s: %w", name, err)
	}
	if err := script.Add("log", r.logFunc(name)); err != nil {
		return nil, fmt.Errorf("bot %s: %w", name, err)
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile bot %s: %w", name, err)
	}
	return compiled, nil
}

// logFunc is the log(...) builtin: its arguments are joined with spaces and
// emitted as one line.
func (r *Runner) logFunc(name string) *tengo.UserFunction {
	return &tengo.UserFunction{
		Name: "log",
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) == 0 {
				return nil, tengo.ErrWrongNumArguments
			}
			parts := make([]string, len(args))
			for i, arg := range args {
				s, ok := tengo.ToString(arg)
				if !ok {
					s = arg.String()
				}
				parts[i] = s
			}
			r.emit(name, strings.Join(parts, " "))
			return tengo.UndefinedValue, nil
		},
	}
}

func (r *Runner) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, name)
}

// Running lists scripts that have not finished, sorted.
func (r *Runner) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.running))
	for name := range r.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop cancels a running script. It reports whether the script was running.
func (r *Runner) Stop(name string) bool {
	r.mu.Lock()
	cancel, ok := r.running[name]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels every script and waits for them to return.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.running {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
