// internal/browser/script.go
package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Element addresses the Index-th match of a Locator in document order.
type Element struct {
	Locator Locator
	Index   int
}

// Nth returns the i-th match of l.
func (l Locator) Nth(i int) Element { return Element{Locator: l, Index: i} }

// First returns the first match of l.
func (l Locator) First() Element { return l.Nth(0) }

func (e Element) String() string {
	return fmt.Sprintf("%s[%d]", e.Locator, e.Index)
}

// scriptResult is the envelope every element script resolves to. Found is
// false when the element does not exist at evaluation time.
type scriptResult struct {
	Found bool                `json:"found"`
	Value jsoniter.RawMessage `json:"value"`
}

// quoteJS renders s as a JavaScript string literal.
func quoteJS(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// Marshaling a string cannot fail.
		panic(err)
	}
	return string(b)
}

// listExpr evaluates to an array of every element matched by l.
func listExpr(l Locator) string {
	if l.Strategy == ByXPath {
		return fmt.Sprintf(`(function(){var r=document.evaluate(%s,document,null,XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);var out=[];for(var i=0;i<r.snapshotLength;i++){out.push(r.snapshotItem(i));}return out;})()`, quoteJS(l.Value))
	}
	sel, _ := l.Selector()
	return fmt.Sprintf(`Array.prototype.slice.call(document.querySelectorAll(%s))`, quoteJS(sel))
}

// countScript evaluates to the number of elements matched by l.
func countScript(l Locator) string {
	return listExpr(l) + ".length"
}

// elementScript wraps body so that it runs with `el` bound to the addressed
// element. body must return the value to report.
func elementScript(e Element, body string) string {
	return fmt.Sprintf(`(function(){var el=%s[%d];if(!el){return {found:false,value:null};}var v=(function(el){%s})(el);return {found:true,value:(v===undefined?null:v)};})()`,
		listExpr(e.Locator), e.Index, body)
}

// Element script bodies shared by the script-driven engines.
const (
	visibleBody = `var r=el.getBoundingClientRect();var s=window.getComputedStyle(el);
return r.width>0&&r.height>0&&s.visibility!=='hidden'&&s.display!=='none'&&s.opacity!=='0';`
	clickableBody = `var r=el.getBoundingClientRect();var s=window.getComputedStyle(el);
return r.width>0&&r.height>0&&s.visibility!=='hidden'&&s.display!=='none'&&!el.disabled&&el.getAttribute('aria-disabled')!=='true';`
	textBody      = `return (el.innerText||el.textContent||'').trim();`
	outerHTMLBody = `return el.outerHTML;`
	scrollBody    = `el.scrollIntoView({block:'center',inline:'nearest'});return true;`
	clickBody     = `el.click();return true;`
	highlightBody = `el.style.outline='3px solid #e4572e';el.style.outlineOffset='2px';return true;`
	clearBody     = `el.focus();if('value' in el){el.value='';el.dispatchEvent(new Event('input',{bubbles:true}));el.dispatchEvent(new Event('change',{bubbles:true}));}return true;`
)

func attributeBody(name string) string {
	return fmt.Sprintf(`return el.getAttribute(%s);`, quoteJS(name))
}

func markBody(token string) string {
	return fmt.Sprintf(`el.setAttribute(%s,%s);return true;`, quoteJS(MarkAttribute), quoteJS(token))
}

// selectBody picks the option carrying value and fires change, or returns
// false when no such option exists.
func selectBody(value string) string {
	return fmt.Sprintf(`var want=%s;var opts=el.options||[];for(var i=0;i<opts.length;i++){if(opts[i].value===want){el.value=want;el.dispatchEvent(new Event('input',{bubbles:true}));el.dispatchEvent(new Event('change',{bubbles:true}));return true;}}return false;`, quoteJS(value))
}
