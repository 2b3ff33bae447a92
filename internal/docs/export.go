package docs

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	pdfLineWidth    = 92 // characters per line at 11pt Helvetica on letter
	pdfLinesPerPage = 46
)

// BuildPDF renders a title and plain-text body as a minimal multi-page PDF.
// Lines longer than the page width wrap on whitespace.
func BuildPDF(title, body string) []byte {
	lines := []string{title, ""}
	for _, raw := range strings.Split(body, "\n") {
		lines = append(lines, wrapLine(raw, pdfLineWidth)...)
	}

	var pages [][]string
	for len(lines) > 0 {
		n := min(pdfLinesPerPage, len(lines))
		pages = append(pages, lines[:n])
		lines = lines[n:]
	}

	// Objects: 1 catalog, 2 page tree, 3 font, then a page and a content
	// stream per page.
	var buf bytes.Buffer
	offsets := []int{0} // object 0 is the free-list head
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets)-1, body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, page := range pages {
		var content strings.Builder
		content.WriteString("BT /F1 11 Tf 14 TL 56 740 Td\n")
		for j, line := range page {
			if i == 0 && j == 0 {
				content.WriteString("/F1 16 Tf ")
			}
			fmt.Fprintf(&content, "(%s) Tj T*\n", escapePDFText(line))
			if i == 0 && j == 0 {
				content.WriteString("/F1 11 Tf\n")
			}
		}
		content.WriteString("ET")

		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()))
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets))
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets[1:] {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets), xrefStart)
	return buf.Bytes()
}

func wrapLine(s string, width int) []string {
	if len(s) <= width {
		return []string{s}
	}
	var out []string
	for len(s) > width {
		cut := strings.LastIndex(s[:width], " ")
		if cut <= 0 {
			cut = width
		}
		out = append(out, strings.TrimRight(s[:cut], " "))
		s = strings.TrimLeft(s[cut:], " ")
	}
	return append(out, s)
}

var pdfEscaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)

func escapePDFText(s string) string {
	return pdfEscaper.Replace(s)
}
