package worker

import (
	"os"
	"strings"

	"github.com/agusx1211/amux/internal/debug"
	"github.com/agusx1211/amux/internal/store"
)

// Env variables the worker's connector uses to find the orchestrator.
const (
	// EnvModulePath is the module search path for the connector module.
	EnvModulePath = "PYTHONPATH"
	// EnvServerURL points the connector at the local message endpoint.
	EnvServerURL = "AMUX_SERVER_URL"
)

// LaunchSpec is the resolved command/args/env for one worker process.
type LaunchSpec struct {
	Command string
	Args    []string
	Env     []string
}

// BuildLaunchSpec translates project settings into the worker's argument
// vector and environment.
//
// This is the single source of truth for worker invocation: module-style
// entry (-m <module>), then the user's free-text options with any --model
// stripped (the orchestrator's model selection always wins and is appended
// last), then fixed flags, then model flags. Reasoning-effort and
// thinking-tokens flags are suppressed when the user's own options already
// set them, to avoid duplicate or conflicting flags.
func BuildLaunchSpec(ps *store.ProjectSettings, serverURL string) LaunchSpec {
	spec := LaunchSpec{
		Command: ps.Worker.Interpreter,
		Args:    []string{"-m", ps.Worker.Module},
	}

	userOpts := stripModelFlag(SplitOptions(ps.Worker.Options))
	spec.Args = append(spec.Args, userOpts...)
	spec.Args = append(spec.Args, "--no-check-update", "--no-show-model-warnings")
	spec.Args = append(spec.Args, "--model", ps.Models.Main)

	if w := strings.TrimSpace(ps.Models.Weak); w != "" {
		spec.Args = append(spec.Args, "--weak-model", w)
	}
	if r := strings.TrimSpace(ps.Models.ReasoningEffort); r != "" && !hasFlag(userOpts, "--reasoning-effort") {
		spec.Args = append(spec.Args, "--reasoning-effort", r)
	}
	if tt := strings.TrimSpace(ps.Models.ThinkingTokens); tt != "" && !hasFlag(userOpts, "--thinking-tokens") {
		spec.Args = append(spec.Args, "--thinking-tokens", tt)
	}

	env := os.Environ()
	for k, v := range ps.Env {
		env = setEnv(env, k, v)
	}
	if mp := strings.TrimSpace(ps.Worker.ModulePath); mp != "" {
		env = setEnv(env, EnvModulePath, mp)
	}
	env = setEnv(env, EnvServerURL, serverURL)
	spec.Env = debug.PropagatedEnv(env, "worker")

	return spec
}

// SplitOptions tokenizes a free-text options string shell-style: fields are
// whitespace-separated, and double- or single-quoted substrings keep their
// embedded spaces (quotes are stripped).
func SplitOptions(options string) []string {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inTok   bool
	)
	for _, r := range options {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inTok = true
		case r == ' ' || r == '\t' || r == '\n':
			if inTok {
				args = append(args, current.String())
				current.Reset()
				inTok = false
			}
		default:
			current.WriteRune(r)
			inTok = true
		}
	}
	if inTok {
		args = append(args, current.String())
	}
	return args
}

// stripModelFlag removes any user-supplied --model flag (separate or
// --model=value form) together with its value.
func stripModelFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--model" {
			i++ // skip the value too
			continue
		}
		if strings.HasPrefix(args[i], "--model=") {
			continue
		}
		out = append(out, args[i])
	}
	return out
}

// hasFlag reports whether args contains flag in either --flag or --flag=x form.
func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}
	return false
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	replace := prefix + value
	for i := range env {
		if strings.HasPrefix(env[i], prefix) {
			env[i] = replace
			return env
		}
	}
	return append(env, replace)
}
