// Package markdown converts assistant replies written in a constrained
// markdown dialect into HTML fragments for direct insertion into the chat
// view. It is a fixed sequence of rewrite passes rather than a grammar:
// each pass feeds the next, and the pass order is load-bearing. Code
// fences are handled first so their content is not re-matched by the
// list, table, or emphasis rules; bold runs before italic so "**" is not
// split into two "*" spans; lists run before emphasis because bullet
// markers reuse "*". Unrecognized syntax passes through as literal text
// and malformed input never produces an error.
package markdown

import (
	"regexp"
	"strings"
)

var (
	codeBlockRe = regexp.MustCompile("(?s)```([A-Za-z0-9_+#.-]*)\n?(.*?)```")

	hrRe         = regexp.MustCompile(`(?m)^(?:-{3,}|\*{3,})$`)
	blockquoteRe = regexp.MustCompile(`(?m)^> ?(.*)$`)

	// Longest prefix first: four hashes before three before two before one.
	h4Re = regexp.MustCompile(`(?m)^#### (.*)$`)
	h3Re = regexp.MustCompile(`(?m)^### (.*)$`)
	h2Re = regexp.MustCompile(`(?m)^## (.*)$`)
	h1Re = regexp.MustCompile(`(?m)^# (.*)$`)

	orderedItemRe   = regexp.MustCompile(`^\d+\. (.+)$`)
	unorderedItemRe = regexp.MustCompile(`^[-*] (.+)$`)

	boldRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	// Emphasis spans must not sit against a backtick or their own
	// marker; the neighbor bytes are checked in convertEmphasis rather
	// than consumed by the pattern, so adjacent spans all convert.
	italicStarRe       = regexp.MustCompile("\\*([^*`\n]+)\\*")
	italicUnderscoreRe = regexp.MustCompile("_([^_`\n]+)_")

	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")

	tableRowRe = regexp.MustCompile(`^\|(.+)\|$`)
	tableSepRe = regexp.MustCompile(`^[\s|:-]+$`)
)

// cleanupReplacer drops the spurious line break that follows a
// block-level closing tag, and merges consecutive blockquotes.
var cleanupReplacer = strings.NewReplacer(
	"</div><br>", "</div>",
	"</h2><br>", "</h2>",
	"</h3><br>", "</h3>",
	"</h4><br>", "</h4>",
	"</h5><br>", "</h5>",
	"</ol><br>", "</ol>",
	"</ul><br>", "</ul>",
	"<hr><br>", "<hr>",
	"</table><br>", "</table>",
	"</blockquote><br><blockquote>", "</blockquote><blockquote>",
)

// Render converts text to an HTML fragment. It is a pure function of its
// input: the same text always yields the same fragment, and empty input
// yields the empty string.
func Render(text string) string {
	if text == "" {
		return ""
	}

	out := codeBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := codeBlockRe.FindStringSubmatch(m)
		return renderCodeBlock(sub[1], sub[2])
	})

	out = convertTables(out)
	out = hrRe.ReplaceAllString(out, "<hr>")
	out = blockquoteRe.ReplaceAllString(out, "<blockquote>$1</blockquote>")

	out = h4Re.ReplaceAllString(out, "<h5>$1</h5>")
	out = h3Re.ReplaceAllString(out, "<h3>$1</h3>")
	out = h2Re.ReplaceAllString(out, "<h2>$1</h2>")
	out = h1Re.ReplaceAllString(out, "<h1>$1</h1>")

	out = convertLists(out, orderedItemRe, "<ol>", "</ol>")
	out = convertLists(out, unorderedItemRe, "<ul>", "</ul>")

	out = boldRe.ReplaceAllString(out, "<strong>$1</strong>")
	out = convertEmphasis(out, italicStarRe, '*')
	out = convertEmphasis(out, italicUnderscoreRe, '_')

	out = inlineCodeRe.ReplaceAllString(out, "<code>$1</code>")

	out = strings.ReplaceAll(out, "\n", "<br>")
	out = cleanupReplacer.Replace(out)

	return out
}

// renderCodeBlock wraps a fenced code block in a container with a header
// naming the language and a copy affordance. The copy button carries a
// data attribute for the host page to bind by event delegation; no
// executable markup is embedded in the fragment. Newlines in the body are
// converted here so later line-anchored passes never see code content.
func renderCodeBlock(lang, body string) string {
	if lang == "" {
		lang = "code"
	}
	escaped := escapeHTML(strings.TrimSpace(body))
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")

	var b strings.Builder
	b.WriteString(`<div class="code-block"><div class="code-block-header"><span class="code-lang">`)
	b.WriteString(lang)
	b.WriteString(`</span><button class="copy-btn" data-copy-code>Copy</button></div><pre><code>`)
	b.WriteString(escaped)
	b.WriteString(`</code></pre></div>`)
	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// convertLists rewrites lines matching itemRe into list items and wraps
// each run of consecutive items in a single container element. Detection
// is per line: a paragraph without a marker on every line breaks the run.
func convertLists(text string, itemRe *regexp.Regexp, openTag, closeTag string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var items []string

	flush := func() {
		if len(items) == 0 {
			return
		}
		out = append(out, openTag+strings.Join(items, "")+closeTag)
		items = nil
	}

	for _, line := range lines {
		if m := itemRe.FindStringSubmatch(line); m != nil {
			items = append(items, "<li>"+m[1]+"</li>")
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()

	return strings.Join(out, "\n")
}

// convertEmphasis wraps marker-delimited spans in <em>. The bytes
// adjacent to a candidate span are inspected without being consumed, so
// spans separated by a single character still all convert; a span
// touching a backtick or another marker stays literal.
func convertEmphasis(text string, spanRe *regexp.Regexp, marker byte) string {
	matches := spanRe.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && (text[start-1] == '`' || text[start-1] == marker) {
			continue
		}
		if end < len(text) && (text[end] == '`' || text[end] == marker) {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString("<em>")
		b.WriteString(text[m[2]:m[3]])
		b.WriteString("</em>")
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// convertTables rewrites runs of two or more contiguous "| cell | cell |"
// lines into a table. A single matching line is left as literal text.
func convertTables(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var rows []string

	flush := func() {
		if len(rows) >= 2 {
			out = append(out, renderTable(rows))
		} else {
			out = append(out, rows...)
		}
		rows = nil
	}

	for _, line := range lines {
		if tableRowRe.MatchString(line) {
			rows = append(rows, line)
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()

	return strings.Join(out, "\n")
}

func renderTable(rows []string) string {
	var b strings.Builder
	b.WriteString("<table><thead><tr>")
	for _, cell := range splitRow(rows[0]) {
		b.WriteString("<th>")
		b.WriteString(cell)
		b.WriteString("</th>")
	}
	b.WriteString("</tr></thead><tbody>")

	bodyStart := 1
	if isSeparatorRow(rows[1]) {
		bodyStart = 2
	}
	for _, row := range rows[bodyStart:] {
		b.WriteString("<tr>")
		for _, cell := range splitRow(row) {
			b.WriteString("<td>")
			b.WriteString(cell)
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

// splitRow splits a table row on "|", trims each cell, and discards the
// empty leading and trailing fragments produced by the enclosing pipes.
func splitRow(row string) []string {
	parts := strings.Split(row, "|")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) == "" {
		parts = parts[1:]
	}
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

// isSeparatorRow reports whether row is a header/body separator: a row
// consisting only of dashes, colons, pipes, and whitespace.
func isSeparatorRow(row string) bool {
	return strings.Contains(row, "-") && tableSepRe.MatchString(row)
}
