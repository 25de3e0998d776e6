// Package validator is the library of named value validators that standard
// attributes reference.
//
// A validator is a pure function of (raw value, context) returning either
// the validated value or an error. The same function serves both directions
// of the attribute pipeline: in Encode mode it normalizes a value before it
// is persisted, in Decode mode it turns a persisted value back into its
// typed form. Validators may consult sibling attributes through the
// Context, enabling cross-field constraints.
//
// The Library holds builtin validators plus validators generated while
// compiling conventions (for example one closure per regex expression).
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode tells a validator which direction a value travels.
type Mode int

const (
	// Encode validates a value that is about to be persisted.
	Encode Mode = iota
	// Decode turns a persisted value into its externally visible form.
	Decode
)

func (m Mode) String() string {
	if m == Decode {
		return "decode"
	}
	return "encode"
}

// Lookup reads attribute values of the enclosing container.
type Lookup interface {
	Lookup(name string) (any, bool)
}

// Context is handed to every validator call.
type Context struct {
	// Attribute is the name of the attribute being validated.
	Attribute string
	// Path identifies the enclosing container, for messages only.
	Path string
	Mode Mode
	// Container exposes the persisted attributes of the enclosing container.
	// It may be nil when a value is validated outside of any container.
	Container Lookup
	// Pending holds attribute values supplied in the same creation call that
	// have not been persisted yet.
	Pending map[string]any
}

// Sibling returns the value of another attribute of the same container.
// Pending values take precedence over persisted ones.
func (c *Context) Sibling(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	if v, ok := c.Pending[name]; ok {
		return v, true
	}
	if c.Container != nil {
		return c.Container.Lookup(name)
	}
	return nil, false
}

// Func validates a single value.
type Func func(ctx context.Context, value any, vc *Context) (any, error)

// Registered describes a validator known to the library.
type Registered struct {
	Name        string
	Description string
	Func        Func
	// Network marks validators that perform a reachability check.
	Network bool
	// Generated marks validators minted while compiling a convention.
	Generated bool
	// Pattern is the source expression of a generated regex validator.
	Pattern string
}

// Library holds all registered validators.
type Library struct {
	mu     sync.RWMutex
	all    map[string]*Registered
	client *http.Client
}

// Option configures a Library.
type Option func(*Library)

// WithReachabilityTimeout bounds the request made by url_reachable.
func WithReachabilityTimeout(d time.Duration) Option {
	return func(l *Library) {
		if d > 0 {
			l.client = &http.Client{Timeout: d}
		}
	}
}

// WithHTTPClient replaces the client used by url_reachable.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Library) {
		if c != nil {
			l.client = c
		}
	}
}

// NewLibrary creates a library pre-populated with the builtin validators.
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		all:    make(map[string]*Registered),
		client: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.registerBuiltins()
	return l
}

// NormalizeName strips the optional "$" marker from a validator reference.
func NormalizeName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "$")
}

// Register adds a validator under name.
func (l *Library) Register(name string, r *Registered) {
	name = NormalizeName(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.all[name]; exists {
		panic(fmt.Sprintf("validator with name '%s' already registered", name))
	}
	slog.Debug("Registering validator.", "name", name, "generated", r.Generated)
	r.Name = name
	l.all[name] = r
}

// Lookup returns the validator registered under name.
func (l *Library) Lookup(name string) (*Registered, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.all[NormalizeName(name)]
	return r, ok
}

// Names returns all registered validator names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.all))
	for n := range l.all {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a generated validator. Builtins are never removed.
func (l *Library) Unregister(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	name = NormalizeName(name)
	r, ok := l.all[name]
	if !ok || !r.Generated {
		return false
	}
	delete(l.all, name)
	return true
}

// Regex compiles pattern and registers a matching validator under a freshly
// minted, process-unique name.
func (l *Library) Regex(pattern string) (*Registered, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %w", pattern, err)
	}
	r := &Registered{
		Description: fmt.Sprintf("String matching the regular expression %q.", pattern),
		Func:        regexFunc(re),
		Generated:   true,
		Pattern:     pattern,
	}
	l.Register("regex_"+strings.ReplaceAll(uuid.NewString(), "-", ""), r)
	return r, nil
}

func regexFunc(re *regexp.Regexp) Func {
	return func(_ context.Context, value any, _ *Context) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", value)
		}
		if !re.MatchString(s) {
			return nil, fmt.Errorf("value %q does not match the regular expression '%s'", s, re.String())
		}
		return s, nil
	}
}
