package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCleanArtifacts(t *testing.T) {
	r := NewRunner()
	htmlSrc := `<!DOCTYPE html>
<html>
<head><title>App</title><script src="app.js"></script></head>
<body><button id="go">Go</button></body>
</html>`
	jsSrc := `function start() { console.log("hi"); }
document.getElementById("go").addEventListener("click", start);`

	report := r.Run("t1", htmlSrc, jsSrc)
	assert.True(t, report.OK)
	assert.True(t, report.JSValid)
	assert.Empty(t, report.Errors)
	assert.Contains(t, report.NormalizedHTML, "<title>App</title>")
}

func TestRunNormalizesMalformedHTML(t *testing.T) {
	r := NewRunner()
	// unclosed tags get repaired by the parser
	report := r.Run("t1", `<html><body><p>hello<div>world</body></html>`, "")
	assert.True(t, report.OK)
	assert.Contains(t, report.NormalizedHTML, "</p>")
	assert.Contains(t, report.NormalizedHTML, "</div>")
}

func TestRunRejectsInlineScript(t *testing.T) {
	r := NewRunner()
	report := r.Run("t1", `<html><body><script>alert("hi")</script></body></html>`, "")
	assert.False(t, report.OK)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "inline <script>")
}

func TestRunAllowsJSONDataIsland(t *testing.T) {
	r := NewRunner()
	report := r.Run("t1", `<html><body><script type="application/json">{"a":1}</script></body></html>`, "")
	assert.True(t, report.OK)
}

func TestRunFlagsInlineHandlers(t *testing.T) {
	r := NewRunner()
	report := r.Run("t1", `<html><body><button onclick="doThing()">Go</button></body></html>`, "")
	assert.False(t, report.OK)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "onclick")

	permissive := &Runner{AllowInlineHandlers: true}
	report = permissive.Run("t1", `<html><body><button onclick="alert(1)">Go</button></body></html>`, "")
	assert.True(t, report.OK)
}

func TestRunDetectsUndefinedCall(t *testing.T) {
	r := NewRunner()
	jsSrc := `function init() { renderDashboard(); }
init();`
	report := r.Run("t1", "", jsSrc)
	assert.False(t, report.OK)
	assert.False(t, report.JSValid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "renderDashboard")
}

func TestRunResolvesDeclarationsAndImports(t *testing.T) {
	r := NewRunner()
	jsSrc := `import { fetchTodos, saveTodo as persist } from "./api.js";
import render from "./render.js";
const format = (x) => x.trim();
class Store {}
function main() {
  const s = new Store();
  render(fetchTodos());
  persist(format("x"));
}
main();`
	report := r.Run("t1", "", jsSrc)
	assert.True(t, report.JSValid, "errors: %v", report.Errors)
}

func TestRunIgnoresCommentsAndStrings(t *testing.T) {
	r := NewRunner()
	jsSrc := `// phantomCall() in a comment
/* alsoPhantom() */
const msg = "call ghostFn() here";
console.log(msg);`
	report := r.Run("t1", "", jsSrc)
	assert.True(t, report.JSValid, "errors: %v", report.Errors)
}

func TestRunMethodCallsAreNotFlagged(t *testing.T) {
	r := NewRunner()
	jsSrc := `const el = document.querySelector("#x");
el.classList.toggle("on");
JSON.stringify({a: 1});`
	report := r.Run("t1", "", jsSrc)
	assert.True(t, report.JSValid, "errors: %v", report.Errors)
}

func TestRunEmptyArtifacts(t *testing.T) {
	r := NewRunner()
	report := r.Run("t1", "", "")
	assert.True(t, report.OK)
	assert.Empty(t, report.NormalizedHTML)
}

func TestRunReportsEachUndefinedNameOnce(t *testing.T) {
	r := NewRunner()
	jsSrc := strings.Repeat("missingFn();\n", 3)
	report := r.Run("t1", "", jsSrc)
	require.Len(t, report.Errors, 1)
}
