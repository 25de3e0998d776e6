package validator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
	"golang.org/x/mod/semver"
)

// UnitsAttribute is the sibling attribute consulted by float_with_units.
const UnitsAttribute = "units"

func (l *Library) registerBuiltins() {
	l.Register("str", &Registered{Description: "A string.", Func: validateString})
	l.Register("int", &Registered{Description: "An integer.", Func: validateInt})
	l.Register("float", &Registered{Description: "A floating point number.", Func: validateFloat})
	l.Register("bool", &Registered{Description: "A boolean.", Func: validateBool})
	l.Register("str_list", &Registered{Description: "A list of strings.", Func: validateStringList})
	l.Register("dict", &Registered{Description: "A mapping with string keys.", Func: validateDict})
	l.Register("url", &Registered{Description: "An absolute http(s) URL.", Func: validateURL})
	l.Register("url_reachable", &Registered{
		Description: "An absolute http(s) URL that answers a HEAD or GET request.",
		Func:        l.validateReachableURL,
		Network:     true,
	})
	l.Register("orcid", &Registered{Description: "An ORCID iD.", Func: validateORCID})
	l.Register("ror", &Registered{Description: "A Research Organization Registry ID.", Func: validateROR})
	l.Register("unit", &Registered{Description: "A physical unit expression.", Func: validateUnit})
	l.Register("quantity", &Registered{Description: "A number followed by a unit.", Func: validateQuantity})
	l.Register("float_with_units", &Registered{
		Description: "A floating point number that requires a valid sibling 'units' attribute.",
		Func:        validateFloatWithUnits,
	})
	l.Register("semver", &Registered{Description: "A semantic version.", Func: validateSemver})
	l.Register("datetime", &Registered{Description: "A date and time.", Func: validateDatetime})
}

func validateString(_ context.Context, value any, _ *Context) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %T", value)
	}
	return s, nil
}

func validateInt(_ context.Context, value any, _ *Context) (any, error) {
	switch v := value.(type) {
	case bool, nil:
		return nil, fmt.Errorf("expected an integer, got %T", value)
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
	}
	i, err := cast.ToInt64E(value)
	if err != nil {
		return nil, fmt.Errorf("expected an integer: %w", err)
	}
	return i, nil
}

func validateFloat(_ context.Context, value any, _ *Context) (any, error) {
	if _, isBool := value.(bool); isBool || value == nil {
		return nil, fmt.Errorf("expected a number, got %T", value)
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return nil, fmt.Errorf("expected a number: %w", err)
	}
	return f, nil
}

func validateBool(_ context.Context, value any, _ *Context) (any, error) {
	if value == nil {
		return nil, errors.New("expected a boolean, got nil")
	}
	b, err := cast.ToBoolE(value)
	if err != nil {
		return nil, fmt.Errorf("expected a boolean: %w", err)
	}
	return b, nil
}

func validateStringList(_ context.Context, value any, _ *Context) (any, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected a string, got %T", i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", value)
	}
}

func validateDict(_ context.Context, value any, _ *Context) (any, error) {
	m, err := cast.ToStringMapE(value)
	if err != nil || value == nil {
		return nil, fmt.Errorf("expected a mapping with string keys, got %T", value)
	}
	return m, nil
}

func parseHTTPURL(value any) (*url.URL, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a URL string, got %T", value)
	}
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", s, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL %q: scheme must be http or https", s)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: missing host", s)
	}
	return u, nil
}

func validateURL(_ context.Context, value any, _ *Context) (any, error) {
	u, err := parseHTTPURL(value)
	if err != nil {
		return nil, err
	}
	return u.String(), nil
}

// validateReachableURL only touches the network when encoding; reading a
// persisted value is a syntactic check.
func (l *Library) validateReachableURL(ctx context.Context, value any, vc *Context) (any, error) {
	u, err := parseHTTPURL(value)
	if err != nil {
		return nil, err
	}
	if vc != nil && vc.Mode == Decode {
		return u.String(), nil
	}

	status, err := l.probe(ctx, http.MethodHead, u.String())
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = l.probe(ctx, http.MethodGet, u.String())
	}
	if err != nil {
		return nil, fmt.Errorf("URL %q is not reachable: %w", u, err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("URL %q is not reachable: status %d", u, status)
	}
	return u.String(), nil
}

func (l *Library) probe(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func validateFloatWithUnits(ctx context.Context, value any, vc *Context) (any, error) {
	f, err := validateFloat(ctx, value, vc)
	if err != nil {
		return nil, err
	}
	units, ok := vc.Sibling(UnitsAttribute)
	if !ok {
		return nil, fmt.Errorf("requires the sibling attribute '%s' to be set", UnitsAttribute)
	}
	s, ok := units.(string)
	if !ok {
		return nil, fmt.Errorf("sibling attribute '%s' must be a string, got %T", UnitsAttribute, units)
	}
	if _, err := ParseUnit(s); err != nil {
		return nil, fmt.Errorf("sibling attribute '%s' is invalid: %w", UnitsAttribute, err)
	}
	return f, nil
}

func validateSemver(_ context.Context, value any, _ *Context) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a version string, got %T", value)
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "v")
	v := "v" + trimmed
	if !semver.IsValid(v) {
		return nil, fmt.Errorf("%q is not a valid semantic version", s)
	}
	core := trimmed
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.Count(core, ".") != 2 {
		return nil, fmt.Errorf("%q is not a valid semantic version: expected MAJOR.MINOR.PATCH", s)
	}
	return trimmed, nil
}

func validateDatetime(_ context.Context, value any, vc *Context) (any, error) {
	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return nil, errors.New("expected a date, got nil")
		}
		t = *v
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			parsed, err = dateparse.ParseAny(v)
			if err != nil {
				return nil, fmt.Errorf("invalid date %q: %w", v, err)
			}
		}
		t = parsed
	default:
		return nil, fmt.Errorf("expected a date string, got %T", value)
	}
	if vc != nil && vc.Mode == Decode {
		return t, nil
	}
	return t.Format(time.RFC3339Nano), nil
}
