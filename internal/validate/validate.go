// Package validate performs structural validation of generated frontend
// artifacts. HTML is parsed and re-rendered through a real parser so the
// stored document is always well formed; JavaScript gets a lightweight
// reference scan that catches calls to functions nothing defines.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
)

// Runner validates HTML and JS artifacts of a single task
type Runner struct {
	// AllowInlineHandlers permits onclick-style attributes instead of
	// flagging them
	AllowInlineHandlers bool
}

// NewRunner creates a validation runner with the default policy
func NewRunner() *Runner {
	return &Runner{}
}

// Run validates the artifacts and returns a report. Validation never
// returns an error; findings are carried in the report so the caller can
// route them back to the implementer.
func (r *Runner) Run(taskID, htmlSrc, jsSrc string) *build.ValidationReport {
	report := &build.ValidationReport{
		TaskID:    taskID,
		OK:        true,
		JSValid:   true,
		CreatedAt: time.Now().UTC(),
	}

	if strings.TrimSpace(htmlSrc) != "" {
		r.validateHTML(htmlSrc, report)
	}
	if strings.TrimSpace(jsSrc) != "" {
		r.validateJS(jsSrc, report)
	}

	report.OK = len(report.Errors) == 0
	return report
}

func (r *Runner) validateHTML(src string, report *build.ValidationReport) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("html parse failed: %v", err))
		return
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "script" {
				r.checkScript(n, report)
			}
			if !r.AllowInlineHandlers {
				for _, attr := range n.Attr {
					if isEventHandlerAttr(attr.Key) {
						report.Errors = append(report.Errors,
							fmt.Sprintf("inline event handler %s on <%s>; attach listeners from script files instead", attr.Key, n.Data))
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("html render failed: %v", err))
		return
	}
	report.NormalizedHTML = b.String()
}

// checkScript flags script elements that carry an inline body. Scripts must
// reference a file via src; JSON data islands (type application/json) are
// allowed.
func (r *Runner) checkScript(n *html.Node, report *build.ValidationReport) {
	var src, typ string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "src":
			src = attr.Val
		case "type":
			typ = strings.ToLower(attr.Val)
		}
	}
	if typ == "application/json" || typ == "application/ld+json" {
		return
	}
	if src != "" {
		return
	}

	var body strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			body.WriteString(c.Data)
		}
	}
	if strings.TrimSpace(body.String()) != "" {
		report.Errors = append(report.Errors, "inline <script> body; move code into a .js file referenced by src")
	}
}

var eventHandlerAttrs = map[string]bool{
	"onclick": true, "onchange": true, "onsubmit": true, "oninput": true,
	"onload": true, "onkeydown": true, "onkeyup": true, "onmouseover": true,
	"onmouseout": true, "onfocus": true, "onblur": true, "ondblclick": true,
}

func isEventHandlerAttr(key string) bool {
	return eventHandlerAttrs[strings.ToLower(key)]
}

// hostGlobals are browser and language names a call may resolve to without
// a local definition
var hostGlobals = map[string]bool{
	"document": true, "window": true, "console": true, "fetch": true,
	"alert": true, "confirm": true, "prompt": true, "setTimeout": true,
	"setInterval": true, "clearTimeout": true, "clearInterval": true,
	"requestAnimationFrame": true, "parseInt": true, "parseFloat": true,
	"isNaN": true, "encodeURIComponent": true, "decodeURIComponent": true,
	"String": true, "Number": true, "Boolean": true, "Array": true,
	"Object": true, "JSON": true, "Math": true, "Date": true, "Promise": true,
	"Error": true, "Map": true, "Set": true, "RegExp": true, "Symbol": true,
	"localStorage": true, "sessionStorage": true, "navigator": true,
	"location": true, "history": true, "URL": true, "URLSearchParams": true,
	"FormData": true, "Event": true, "CustomEvent": true, "AbortController": true,
	"structuredClone": true, "queueMicrotask": true, "addEventListener": true,
	"crypto": true, "performance": true, "IntersectionObserver": true,
	"MutationObserver": true, "ResizeObserver": true, "require": true,
	"module": true, "exports": true, "globalThis": true,
}

var (
	funcDeclRe   = regexp.MustCompile(`\bfunction\s+([A-Za-z_$][\w$]*)`)
	varFuncRe    = regexp.MustCompile(`\b(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=`)
	classDeclRe  = regexp.MustCompile(`\bclass\s+([A-Za-z_$][\w$]*)`)
	importRe     = regexp.MustCompile(`\bimport\s+(?:\{([^}]*)\}|([A-Za-z_$][\w$]*))`)
	bareCallRe   = regexp.MustCompile(`(^|[^.\w$])([A-Za-z_$][\w$]*)\s*\(`)
	jsKeywords   = map[string]bool{
		"if": true, "for": true, "while": true, "switch": true, "catch": true,
		"return": true, "function": true, "typeof": true, "new": true,
		"await": true, "async": true, "yield": true, "delete": true,
		"void": true, "in": true, "of": true, "do": true, "else": true,
		"super": true, "this": true, "constructor": true,
	}
)

// validateJS scans for calls to names that no declaration, import or host
// global can resolve. It is deliberately shallow: the goal is catching the
// common generation failure where an agent calls a helper it never wrote.
func (r *Runner) validateJS(src string, report *build.ValidationReport) {
	stripped := stripJS(src)

	defined := make(map[string]bool)
	for _, m := range funcDeclRe.FindAllStringSubmatch(stripped, -1) {
		defined[m[1]] = true
	}
	for _, m := range varFuncRe.FindAllStringSubmatch(stripped, -1) {
		defined[m[1]] = true
	}
	for _, m := range classDeclRe.FindAllStringSubmatch(stripped, -1) {
		defined[m[1]] = true
	}
	for _, m := range importRe.FindAllStringSubmatch(stripped, -1) {
		if m[1] != "" {
			for _, name := range strings.Split(m[1], ",") {
				name = strings.TrimSpace(name)
				if idx := strings.Index(name, " as "); idx >= 0 {
					name = strings.TrimSpace(name[idx+4:])
				}
				if name != "" {
					defined[name] = true
				}
			}
		}
		if m[2] != "" {
			defined[m[2]] = true
		}
	}
	// function parameters commonly shadow helpers; collect simple ones
	for _, m := range regexp.MustCompile(`\(([^()]*)\)\s*(?:=>|\{)`).FindAllStringSubmatch(stripped, -1) {
		for _, p := range strings.Split(m[1], ",") {
			p = strings.TrimSpace(strings.SplitN(p, "=", 2)[0])
			if p != "" && regexp.MustCompile(`^[A-Za-z_$][\w$]*$`).MatchString(p) {
				defined[p] = true
			}
		}
	}

	seen := make(map[string]bool)
	for _, m := range bareCallRe.FindAllStringSubmatch(stripped, -1) {
		name := m[2]
		if jsKeywords[name] || hostGlobals[name] || defined[name] || seen[name] {
			continue
		}
		seen[name] = true
		report.JSValid = false
		report.Errors = append(report.Errors, fmt.Sprintf("call to undefined function %q", name))
	}
}

// stripJS removes string literals and comments so their contents cannot be
// mistaken for code
func stripJS(src string) string {
	var b strings.Builder
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			i += 2
		case c == '"' || c == '\'' || c == '`':
			quote := c
			i++
			for i < len(src) && src[i] != quote {
				if src[i] == '\\' {
					i++
				}
				i++
			}
			i++
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
