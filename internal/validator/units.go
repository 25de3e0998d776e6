package validator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// baseUnits are the unit symbols accepted with or without an SI prefix.
var baseUnits = map[string]bool{
	"m": true, "g": true, "s": true, "A": true, "K": true, "mol": true, "cd": true,
	"Hz": true, "N": true, "Pa": true, "J": true, "W": true, "C": true, "V": true,
	"F": true, "ohm": true, "Ω": true, "S": true, "Wb": true, "T": true, "H": true,
	"lm": true, "lx": true, "Bq": true, "Gy": true, "Sv": true, "kat": true,
	"L": true, "l": true, "bar": true, "eV": true, "rad": true, "sr": true,
	"B": true, "bit": true,
}

// plainUnits are accepted only without a prefix.
var plainUnits = map[string]bool{
	"min": true, "h": true, "d": true, "degC": true, "°C": true, "deg": true,
	"%": true, "percent": true, "ppm": true, "au": true,
}

var siPrefixes = []string{
	"da", "Y", "Z", "E", "P", "T", "G", "M", "k", "h", "d", "c", "m", "u", "µ", "μ", "n", "p", "f", "a", "z", "y",
}

func knownSymbol(sym string) bool {
	if baseUnits[sym] || plainUnits[sym] {
		return true
	}
	for _, p := range siPrefixes {
		if rest, ok := strings.CutPrefix(sym, p); ok && rest != "" && baseUnits[rest] {
			return true
		}
	}
	return false
}

// ParseUnit validates a unit expression such as "m/s", "kg*m^2", "1/s" or
// "m s-1" and returns its canonical spelling. The empty string and "1"
// denote a dimensionless quantity and canonicalize to "".
func ParseUnit(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "1" {
		return "", nil
	}

	var b strings.Builder
	expectTerm := true
	op := ""
	for _, tok := range tokenizeUnit(expr) {
		if tok == "*" || tok == "/" {
			if expectTerm {
				return "", fmt.Errorf("invalid unit %q: unexpected operator %q", expr, tok)
			}
			op = tok
			expectTerm = true
			continue
		}
		term, err := parseUnitTerm(tok)
		if err != nil {
			return "", fmt.Errorf("invalid unit %q: %w", expr, err)
		}
		if b.Len() > 0 {
			if op == "" {
				op = "*"
			}
			b.WriteString(op)
		}
		b.WriteString(term)
		op = ""
		expectTerm = false
	}
	if expectTerm {
		return "", fmt.Errorf("invalid unit %q: trailing operator", expr)
	}
	return b.String(), nil
}

// tokenizeUnit splits a unit expression into terms and the operators "*"
// and "/". Whitespace separates terms and reads as multiplication.
func tokenizeUnit(expr string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range expr {
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == '*' || r == '·':
			flush()
			tokens = append(tokens, "*")
		case r == '/':
			flush()
			tokens = append(tokens, "/")
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// parseUnitTerm parses "sym", "sym^n", "sym^-n" or "sym-n" / "symn".
func parseUnitTerm(term string) (string, error) {
	if term == "1" {
		return "1", nil
	}
	sym, exp := term, ""
	if idx := strings.Index(term, "^"); idx >= 0 {
		sym, exp = term[:idx], term[idx+1:]
		if exp == "" {
			return "", fmt.Errorf("missing exponent in %q", term)
		}
	} else {
		cut := len(term)
		for cut > 0 && (term[cut-1] >= '0' && term[cut-1] <= '9') {
			cut--
		}
		if cut > 0 && term[cut-1] == '-' {
			cut--
		}
		if cut > 0 && cut < len(term) {
			sym, exp = term[:cut], term[cut:]
		}
	}
	if !knownSymbol(sym) {
		return "", fmt.Errorf("unknown unit symbol %q", sym)
	}
	if exp == "" {
		return sym, nil
	}
	n, err := strconv.Atoi(exp)
	if err != nil || n == 0 {
		return "", fmt.Errorf("invalid exponent %q in %q", exp, term)
	}
	if n == 1 {
		return sym, nil
	}
	return sym + "^" + strconv.Itoa(n), nil
}

func validateUnit(_ context.Context, value any, _ *Context) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a unit string, got %T", value)
	}
	return ParseUnit(s)
}

// Quantity is a magnitude with a unit.
type Quantity struct {
	Value float64
	Unit  string
}

// String renders the quantity in the form accepted by ParseQuantity.
func (q Quantity) String() string {
	v := strconv.FormatFloat(q.Value, 'g', -1, 64)
	if q.Unit == "" {
		return v
	}
	return v + " " + q.Unit
}

// ParseQuantity parses "<number> <unit>", e.g. "1.5 m/s" or "3".
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	num, unit, _ := strings.Cut(s, " ")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q: magnitude is not a number", s)
	}
	canonical, err := ParseUnit(unit)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return Quantity{Value: v, Unit: canonical}, nil
}

func validateQuantity(ctx context.Context, value any, vc *Context) (any, error) {
	var q Quantity
	switch v := value.(type) {
	case Quantity:
		unit, err := ParseUnit(v.Unit)
		if err != nil {
			return nil, err
		}
		q = Quantity{Value: v.Value, Unit: unit}
	case *Quantity:
		if v == nil {
			return nil, fmt.Errorf("expected a quantity, got nil")
		}
		return validateQuantity(ctx, *v, vc)
	case string:
		parsed, err := ParseQuantity(v)
		if err != nil {
			return nil, err
		}
		q = parsed
	default:
		f, err := validateFloat(ctx, value, vc)
		if err != nil {
			return nil, fmt.Errorf("expected a quantity, got %T", value)
		}
		q = Quantity{Value: f.(float64)}
	}
	if vc != nil && vc.Mode == Decode {
		return q, nil
	}
	return q.String(), nil
}
