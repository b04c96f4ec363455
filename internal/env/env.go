package env

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformed is returned for an entry that is not of the form K=V.
var ErrMalformed = errors.New("environment entry must be KEY=VALUE")

type Var map[string]string

// Env composes the environment handed to every service.
type Env struct {
	Var   Var  // supervisor-wide overrides (K->V)
	useOS bool // start from the supervisor's own environment
	env   Var  // cached base from OS environment
}

// New returns an Env. With useOS false services start from an empty
// environment and only see Var.
func New(useOS bool) *Env {
	return &Env{
		Var:   make(Var),
		useOS: useOS,
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = parse(os.Environ())
}

// Set sets a variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// SetPairs sets every "K=V" entry of pairs, rejecting malformed ones.
func (e *Env) SetPairs(pairs []string) error {
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return errors.Wrapf(ErrMalformed, "%q", kv)
		}
		e.Set(k, v)
	}
	return nil
}

// Unset removes a variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// Merge composes the final environment list applying order:
// base = OS env (when enabled), then Var overrides.
// $VAR and ${VAR} references are expanded against the composed map (one
// level, no recursion). Unknown variables expand to "". The result is sorted by key.
func (e *Env) Merge() []string {
	m := make(Var)
	if e.useOS {
		if e.env == nil {
			e.FromOS()
		}
		for k, v := range e.env {
			m[k] = v
		}
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func parse(kvs []string) Var {
	base := make(Var, len(kvs))
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			base[k] = v
		}
	}
	return base
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(k string) string { return m[k] })
}
