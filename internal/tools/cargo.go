package tools

import "context"

// Runner executes the repository's cargo tooling inside the service source
// tree with the harness's child environment.
type Runner struct {
	dir string
	env []string
}

// NewRunner returns a Runner working in dir. env entries are appended to the
// inherited environment for every invocation.
func NewRunner(dir string, env []string) *Runner {
	return &Runner{dir: dir, env: env}
}

func (r *Runner) run(ctx context.Context, name string, args ...string) (Output, error) {
	return runCommand(ctx, r.dir, r.env, name, args...)
}

// Build compiles the service with the given feature gates.
func (r *Runner) Build(ctx context.Context, features string) (Output, error) {
	return r.run(ctx, "cargo", "build", "--features", features)
}

// FmtCheck verifies formatting without rewriting anything.
func (r *Runner) FmtCheck(ctx context.Context) (Output, error) {
	return r.run(ctx, "cargo", "fmt", "--all", "--", "--check")
}

// Clippy lints the tree with warnings promoted to errors.
func (r *Runner) Clippy(ctx context.Context, features string) (Output, error) {
	return r.run(ctx, "cargo", "clippy", "--features", features, "--", "-D", "warnings")
}

// TestLib runs the unit test suite.
func (r *Runner) TestLib(ctx context.Context, features string) (Output, error) {
	return r.run(ctx, "cargo", "test", "--features", features, "--lib")
}

// TestDoc runs the documentation tests.
func (r *Runner) TestDoc(ctx context.Context, features string) (Output, error) {
	return r.run(ctx, "cargo", "test", "--features", features, "--doc")
}

// TestFilter runs the end-to-end tests whose names match filter.
func (r *Runner) TestFilter(ctx context.Context, features, filter string) (Output, error) {
	return r.run(ctx, "cargo", "test", "--features", features, filter)
}

// Clean purges build artifacts.
func (r *Runner) Clean(ctx context.Context) (Output, error) {
	return r.run(ctx, "cargo", "clean")
}

// HasFmt reports whether the formatting tool is installed. Absence is a
// skip, not a failure.
func (r *Runner) HasFmt(ctx context.Context) bool {
	_, err := r.run(ctx, "cargo", "fmt", "--version")
	return err == nil
}

// HasClippy reports whether the lint tool is installed.
func (r *Runner) HasClippy(ctx context.Context) bool {
	_, err := r.run(ctx, "cargo", "clippy", "--version")
	return err == nil
}
