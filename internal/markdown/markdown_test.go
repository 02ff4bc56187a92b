package markdown

import (
	"strings"
	"testing"
)

func TestRenderEmptyInput(t *testing.T) {
	t.Parallel()

	if got := Render(""); got != "" {
		t.Fatalf("expected empty output for empty input, got %q", got)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	t.Parallel()

	input := "# Title\n\nSome **bold** and *italic* text with `code`."
	first := Render(input)
	second := Render(input)
	if first != second {
		t.Fatalf("expected identical output for identical input:\n%q\n%q", first, second)
	}
}

func TestRenderHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"h1", "# Title", "<h1>Title</h1>"},
		{"h2", "## Section", "<h2>Section</h2>"},
		{"h3", "### Subsection", "<h3>Subsection</h3>"},
		{"four hashes map to h5", "#### Note", "<h5>Note</h5>"},
		{"no space is not a header", "#Title", "#Title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.input); got != tt.want {
				t.Fatalf("Render(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderHeaderSwallowsFollowingBreak(t *testing.T) {
	t.Parallel()

	got := Render("## Section\ntext")
	want := "<h2>Section</h2>text"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderEmphasis(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bold", "**bold**", "<strong>bold</strong>"},
		{"italic star", "*word*", "<em>word</em>"},
		{"italic underscore", "_word_", "<em>word</em>"},
		{"bold then italic in one line", "**b** and *i*", "<strong>b</strong> and <em>i</em>"},
		{"adjacent italic spans", "*a* *b*", "<em>a</em> <em>b</em>"},
		{"adjacent underscore spans", "_a_ _b_", "<em>a</em> <em>b</em>"},
		{"three italic spans in a row", "*a* *b* *c*", "<em>a</em> <em>b</em> <em>c</em>"},
		{"bold is not split into two italics", "**only bold**", "<strong>only bold</strong>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.input); got != tt.want {
				t.Fatalf("Render(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderInlineCodeKeepsEmphasisMarkersLiteral(t *testing.T) {
	t.Parallel()

	got := Render("`*x*`")
	want := "<code>*x*</code>"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderUnorderedListGroupsConsecutiveItems(t *testing.T) {
	t.Parallel()

	got := Render("- a\n- b")
	want := "<ul><li>a</li><li>b</li></ul>"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
	if strings.Count(got, "<ul>") != 1 {
		t.Fatalf("expected a single list container, got %q", got)
	}
}

func TestRenderOrderedList(t *testing.T) {
	t.Parallel()

	got := Render("1. one\n2. two")
	want := "<ol><li>one</li><li>two</li></ol>"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderListRunBrokenByParagraph(t *testing.T) {
	t.Parallel()

	got := Render("- a\nplain\n- b")
	if strings.Count(got, "<ul>") != 2 {
		t.Fatalf("expected two list containers around the break, got %q", got)
	}
}

func TestRenderHorizontalRule(t *testing.T) {
	t.Parallel()

	got := Render("a\n---\nb")
	want := "a<br><hr>b"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderBlockquoteMergesAdjacentLines(t *testing.T) {
	t.Parallel()

	got := Render("> a\n> b")
	want := "<blockquote>a</blockquote><blockquote>b</blockquote>"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderCodeBlock(t *testing.T) {
	t.Parallel()

	got := Render("```go\nfmt.Println(\"hi\")\n```")
	if !strings.Contains(got, `<span class="code-lang">go</span>`) {
		t.Fatalf("expected language header, got %q", got)
	}
	if !strings.Contains(got, "data-copy-code") {
		t.Fatalf("expected copy affordance, got %q", got)
	}
	if !strings.Contains(got, `<pre><code>fmt.Println("hi")</code></pre>`) {
		t.Fatalf("expected code body, got %q", got)
	}
}

func TestRenderCodeBlockDefaultsLanguage(t *testing.T) {
	t.Parallel()

	got := Render("```\nx := 1\n```")
	if !strings.Contains(got, `<span class="code-lang">code</span>`) {
		t.Fatalf("expected default language label, got %q", got)
	}
}

func TestRenderCodeBlockEscapesHTML(t *testing.T) {
	t.Parallel()

	got := Render("```\na < b && c > d\n```")
	if !strings.Contains(got, "a &lt; b &amp;&amp; c &gt; d") {
		t.Fatalf("expected escaped code body, got %q", got)
	}
}

func TestRenderCodeBlockProtectedFromLinePasses(t *testing.T) {
	t.Parallel()

	// Lines inside a fence that look like a header or a list item must
	// stay literal code.
	got := Render("```\n# not a header\n- not a list\n```")
	if strings.Contains(got, "<h1>") || strings.Contains(got, "<ul>") {
		t.Fatalf("code content leaked into block passes: %q", got)
	}
	if !strings.Contains(got, "# not a header") {
		t.Fatalf("expected literal code content, got %q", got)
	}
}

func TestRenderDoesNotEscapeOutsideCode(t *testing.T) {
	t.Parallel()

	got := Render("a < b")
	if got != "a < b" {
		t.Fatalf("Render = %q, want %q", got, "a < b")
	}
}

func TestRenderTable(t *testing.T) {
	t.Parallel()

	got := Render("| A | B |\n|---|---|\n| 1 | 2 |")
	want := "<table><thead><tr><th>A</th><th>B</th></tr></thead><tbody>" +
		"<tr><td>1</td><td>2</td></tr></tbody></table>"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderTableWithoutSeparator(t *testing.T) {
	t.Parallel()

	got := Render("| A | B |\n| 1 | 2 |")
	if !strings.Contains(got, "<th>A</th>") || !strings.Contains(got, "<td>1</td>") {
		t.Fatalf("expected first row as header and second as body, got %q", got)
	}
}

func TestRenderSingleTableLikeLineStaysLiteral(t *testing.T) {
	t.Parallel()

	got := Render("| just one |")
	if got != "| just one |" {
		t.Fatalf("Render = %q, want literal passthrough", got)
	}
}

func TestRenderNewlinesBecomeBreaks(t *testing.T) {
	t.Parallel()

	got := Render("one\ntwo")
	want := "one<br>two"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderMalformedInputPassesThrough(t *testing.T) {
	t.Parallel()

	tests := []string{
		"**unclosed bold",
		"| broken | table",
		"```unterminated fence",
	}
	for _, input := range tests {
		got := Render(input)
		if got == "" {
			t.Fatalf("Render(%q) produced empty output", input)
		}
	}
}
