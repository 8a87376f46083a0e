// internal/browser/locator.go
package browser

import (
	"fmt"
	"strings"
)

// Strategy is the element-location strategy of a Locator.
type Strategy string

const (
	ByID    Strategy = "id"
	ByCSS   Strategy = "css"
	ByXPath Strategy = "xpath"
)

// MarkAttribute is stamped on an element by Driver.Mark so that later lookups
// can be scoped to it.
const MarkAttribute = "data-e2e-mark"

// Locator identifies a class of elements on the page. It is plain data and is
// resolved against the live DOM on every use.
type Locator struct {
	Strategy Strategy
	Value    string
}

// ID returns a locator matching elements by their id attribute.
func ID(value string) Locator { return Locator{Strategy: ByID, Value: value} }

// CSS returns a locator matching a CSS selector (a comma list is allowed).
func CSS(value string) Locator { return Locator{Strategy: ByCSS, Value: value} }

// XPath returns a locator matching an XPath expression.
func XPath(value string) Locator { return Locator{Strategy: ByXPath, Value: value} }

// ParseLocator parses the textual "strategy=value" form. A value without a
// known strategy prefix is treated as a CSS selector.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}
	if prefix, value, ok := strings.Cut(s, "="); ok {
		switch Strategy(strings.ToLower(strings.TrimSpace(prefix))) {
		case ByID:
			return checked(ID(strings.TrimSpace(value)))
		case ByCSS:
			return checked(CSS(strings.TrimSpace(value)))
		case ByXPath:
			return checked(XPath(strings.TrimSpace(value)))
		}
	}
	return CSS(s), nil
}

func checked(l Locator) (Locator, error) {
	if l.Value == "" {
		return Locator{}, fmt.Errorf("locator %q has an empty value", l.Strategy)
	}
	return l, nil
}

// String renders the locator in the form accepted by ParseLocator.
func (l Locator) String() string {
	return string(l.Strategy) + "=" + l.Value
}

// Selector returns the CSS selector equivalent of an id or CSS locator.
func (l Locator) Selector() (string, bool) {
	switch l.Strategy {
	case ByID:
		return `[id="` + escapeAttr(l.Value) + `"]`, true
	case ByCSS:
		return l.Value, true
	default:
		return "", false
	}
}

// Within scopes the locator to descendants of the element matched by the CSS
// selector scope. Each alternative of a comma list is scoped separately.
// XPath locators cannot be scoped this way.
func (l Locator) Within(scope string) (Locator, error) {
	sel, ok := l.Selector()
	if !ok {
		return Locator{}, fmt.Errorf("locator %s cannot be scoped with CSS", l)
	}
	parts := splitSelectorList(sel)
	for i, p := range parts {
		parts[i] = scope + " " + p
	}
	return CSS(strings.Join(parts, ", ")), nil
}

// MarkSelector returns the CSS selector of the element stamped with token.
func MarkSelector(token string) string {
	return "[" + MarkAttribute + `="` + escapeAttr(token) + `"]`
}

// splitSelectorList splits a CSS selector list on top-level commas, leaving
// commas inside brackets, parentheses and quotes alone.
func splitSelectorList(sel string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range sel {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			if p := strings.TrimSpace(sel[start:i]); p != "" {
				parts = append(parts, p)
			}
			start = i + 1
		}
	}
	if p := strings.TrimSpace(sel[start:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}

func escapeAttr(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}
