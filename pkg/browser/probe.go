package browser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	ActionQuery = "query"
	ActionClick = "click"
)

// ProbeScript finds elements by text or CSS selector and classifies them.
// Substring queries match the rendered text of whole elements, so a fragment
// split across inline children still matches its innermost container. An
// element counts as visible only if it is rendered (display, visibility and
// opacity of the whole ancestor chain), has a non-empty box and intersects both
// the window viewport and every clipping scroll container above it.
const ProbeScript = `(mode, needle, exact, action) => {
  const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
  const want = norm(needle);
  const found = [];
  if (mode === 'css') {
    found.push(...document.querySelectorAll(needle));
  } else if (exact) {
    const root = document.body || document.documentElement;
    const seen = new Set();
    const walker = document.createTreeWalker(root, NodeFilter.SHOW_TEXT);
    for (let n = walker.nextNode(); n; n = walker.nextNode()) {
      const el = n.parentElement;
      if (!el || seen.has(el) || el.closest('script, style, noscript, template')) continue;
      if (norm(n.textContent) === want) {
        seen.add(el);
        found.push(el);
      }
    }
  } else if (want) {
    const lower = want.toLowerCase();
    const skip = (el) => ['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE'].includes(el.tagName.toUpperCase());
    // depth first over rendered text; only the deepest matching elements count
    const visit = (el) => {
      let text = '';
      let inner = false;
      for (const c of el.childNodes) {
        if (c.nodeType === Node.TEXT_NODE) {
          text += c.textContent;
        } else if (c.nodeType === Node.ELEMENT_NODE && !skip(c)) {
          const r = visit(c);
          text += r.text;
          inner = inner || r.hit;
        }
      }
      const hit = inner || norm(text).toLowerCase().includes(lower);
      if (hit && !inner) found.push(el);
      return {text: text, hit: hit};
    };
    visit(document.body || document.documentElement);
  }
  const vw = window.innerWidth || document.documentElement.clientWidth;
  const vh = window.innerHeight || document.documentElement.clientHeight;
  const rendered = (el) => {
    for (let e = el; e; e = e.parentElement) {
      const s = window.getComputedStyle(e);
      if (s.display === 'none' || s.visibility === 'hidden' || s.visibility === 'collapse') return false;
      if (parseFloat(s.opacity) === 0) return false;
    }
    return true;
  };
  const inView = (el) => {
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) return false;
    if (r.bottom <= 0 || r.right <= 0 || r.top >= vh || r.left >= vw) return false;
    for (let p = el.parentElement; p && p !== document.body && p !== document.documentElement; p = p.parentElement) {
      const s = window.getComputedStyle(p);
      if (s.overflow === 'visible' && s.overflowX === 'visible' && s.overflowY === 'visible') continue;
      const c = p.getBoundingClientRect();
      if (r.bottom <= c.top || r.top >= c.bottom || r.right <= c.left || r.left >= c.right) return false;
    }
    return true;
  };
  const visible = found.filter((el) => rendered(el) && inView(el));
  let clicked = false;
  if (action === 'click' && found.length > 0) {
    const target = visible.length > 0 ? visible[0] : found[0];
    target.scrollIntoView({block: 'center'});
    target.click();
    clicked = true;
  }
  let state = 'absent';
  if (visible.length > 0) state = 'visible';
  else if (found.length > 0) state = 'present-hidden';
  return {state: state, count: found.length, clicked: clicked};
}`

// StatusScript reads the HTTP status of the current document from the
// Navigation Timing API. Browsers without responseStatus report 0.
const StatusScript = `() => {
  const entries = performance.getEntriesByType('navigation');
  if (!entries || entries.length === 0) return 0;
  return entries[0].responseStatus || 0;
}`

type ProbeResult struct {
	State   string `json:"state"`
	Count   int    `json:"count"`
	Clicked bool   `json:"clicked"`
}

func (r ProbeResult) Match() (*Match, error) {
	v := Visibility(r.State)
	switch v {
	case Visible, PresentHidden, Absent:
	default:
		return nil, errors.Errorf("unexpected probe state %q", r.State)
	}
	return &Match{Visibility: v, Count: r.Count}, nil
}

// ProbeArgs returns the positional arguments for ProbeScript.
func ProbeArgs(q Query, action string) []any {
	if q.IsText() {
		return []any{"text", q.Text, q.Exact, action}
	}
	return []any{"css", q.Selector, false, action}
}

// ProbeExpression renders ProbeScript as a self-invoking expression for
// backends that evaluate plain expressions.
func ProbeExpression(q Query, action string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ProbeArgs(q, action)); err != nil {
		return "", errors.Wrapf(err, "failed to encode probe arguments")
	}
	// a json array "[a,b,c]" doubles as an argument list once the brackets are dropped
	args := strings.TrimSpace(buf.String())
	return fmt.Sprintf("(%s)(%s)", ProbeScript, args[1:len(args)-1]), nil
}
