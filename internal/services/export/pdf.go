package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pdfFont       = "Arial"
	pdfBodySize   = 10.0
	pdfLineHeight = 5.0
	pdfListIndent = 5.0
)

// PDF renders the notes to an A4 document by walking the goldmark AST
func (s *Service) PDF(job *models.Job, notes *models.Notes) ([]byte, error) {
	source := []byte(stripFrontMatter(notes.Content))
	doc := s.markdown.Parser().Parse(text.NewReader(source))

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(job.Title, true)
	pdf.SetAuthor(job.Creator, true)
	pdf.SetCreator("voicenote", false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(pdfFont, "I", 7)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	r := &pdfRenderer{
		pdf:       pdf,
		source:    source,
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
		size:      pdfBodySize,
	}

	if line := metaLine(job); line != "" {
		pdf.SetFont(pdfFont, "I", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.MultiCell(0, 4, r.translate(line), "", "L", false)
		pdf.Ln(3)
	}
	r.resetStyle()

	if err := ast.Walk(doc, r.walk); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to render PDF")
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to generate PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	return buf.Bytes(), nil
}

type listState struct {
	ordered bool
	next    int
}

type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	translate func(string) string // UTF-8 to the core font code page

	size   float64
	bold   int
	italic int
	link   int
	lists  []listState
	quotes int
}

func (r *pdfRenderer) resetStyle() {
	style := ""
	if r.bold > 0 {
		style += "B"
	}
	if r.italic > 0 || r.quotes > 0 {
		style += "I"
	}
	if r.link > 0 {
		style += "U"
		r.pdf.SetTextColor(30, 80, 170)
	} else {
		r.pdf.SetTextColor(30, 30, 30)
	}
	r.pdf.SetFont(pdfFont, style, r.size)
}

func (r *pdfRenderer) write(s string) {
	r.pdf.Write(max(pdfLineHeight, r.size*0.45), r.translate(s))
}

// newLine breaks only when the cursor is not already at the line start
func (r *pdfRenderer) newLine() {
	left, _, _, _ := r.pdf.GetMargins()
	if r.pdf.GetX() > left+0.5 {
		r.pdf.Ln(pdfLineHeight)
	}
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		r.heading(node, entering)
	case *ast.Paragraph:
		if !entering {
			if len(r.lists) > 0 {
				r.newLine()
			} else {
				r.pdf.Ln(pdfLineHeight + 2)
			}
		}
	case *ast.TextBlock:
		if !entering {
			r.newLine()
		}
	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			switch {
			case node.HardLineBreak():
				r.pdf.Ln(pdfLineHeight)
			case node.SoftLineBreak():
				r.write(" ")
			}
		}
	case *ast.String:
		if entering {
			r.write(string(node.Value))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold += delta(entering)
		} else {
			r.italic += delta(entering)
		}
		r.resetStyle()
	case *ast.Link:
		r.link += delta(entering)
		r.resetStyle()
	case *ast.AutoLink:
		if entering {
			url := string(node.URL(r.source))
			r.link++
			r.resetStyle()
			r.pdf.WriteLinkString(pdfLineHeight, r.translate(url), url)
			r.link--
			r.resetStyle()
		}
		return ast.WalkSkipChildren, nil
	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", r.size)
			r.write(r.plainText(node))
			r.resetStyle()
		}
		return ast.WalkSkipChildren, nil
	case *ast.FencedCodeBlock:
		if entering {
			r.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil
	case *ast.CodeBlock:
		if entering {
			r.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil
	case *ast.Blockquote:
		r.blockquote(entering)
	case *ast.List:
		r.list(node, entering)
	case *ast.ListItem:
		if entering {
			r.listItem()
		}
	case *ast.ThematicBreak:
		if entering {
			r.rule()
		}
	case *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren, nil
	case *extast.Table:
		if entering {
			r.table(node)
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func delta(entering bool) int {
	if entering {
		return 1
	}
	return -1
}

func (r *pdfRenderer) heading(n *ast.Heading, entering bool) {
	if !entering {
		r.pdf.Ln(pdfLineHeight + 1)
		r.size = pdfBodySize
		r.bold--
		r.resetStyle()
		return
	}

	r.newLine()
	r.pdf.Ln(3)
	switch n.Level {
	case 1:
		r.size = 16
	case 2:
		r.size = 13
	case 3:
		r.size = 11.5
	default:
		r.size = pdfBodySize + 0.5
	}
	r.bold++
	r.resetStyle()
}

func (r *pdfRenderer) blockquote(entering bool) {
	left, _, _, _ := r.pdf.GetMargins()
	r.newLine()
	if entering {
		r.quotes++
		r.pdf.SetLeftMargin(left + 6)
	} else {
		r.quotes--
		r.pdf.SetLeftMargin(left - 6)
	}
	r.pdf.SetX(left + float64(delta(entering))*6)
	r.resetStyle()
}

func (r *pdfRenderer) list(n *ast.List, entering bool) {
	if entering {
		r.newLine()
		r.lists = append(r.lists, listState{ordered: n.IsOrdered(), next: n.Start})
		return
	}

	r.lists = r.lists[:len(r.lists)-1]
	if len(r.lists) == 0 {
		r.pdf.Ln(2)
	}
}

func (r *pdfRenderer) listItem() {
	r.newLine()

	depth := len(r.lists)
	state := &r.lists[depth-1]

	marker := "- "
	if state.ordered {
		marker = strconv.Itoa(state.next) + ". "
		state.next++
	}

	left, _, _, _ := r.pdf.GetMargins()
	r.pdf.SetX(left + float64(depth-1)*pdfListIndent)
	r.write(marker)
}

func (r *pdfRenderer) rule() {
	r.newLine()
	left, _, right, _ := r.pdf.GetMargins()
	width, _ := r.pdf.GetPageSize()
	y := r.pdf.GetY() + 2
	r.pdf.SetDrawColor(180, 180, 180)
	r.pdf.Line(left, y, width-right, y)
	r.pdf.SetDrawColor(0, 0, 0)
	r.pdf.Ln(5)
}

func (r *pdfRenderer) codeBlock(lines *text.Segments) {
	r.newLine()
	r.pdf.Ln(1)
	r.pdf.SetFont("Courier", "", 8.5)
	r.pdf.SetFillColor(245, 245, 245)

	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		txt := strings.TrimRight(string(line.Value(r.source)), "\n")
		r.pdf.MultiCell(0, 4.5, r.translate(txt), "", "L", true)
	}

	r.pdf.SetFillColor(255, 255, 255)
	r.resetStyle()
	r.pdf.Ln(2)
}

// plainText concatenates the text beneath n
func (r *pdfRenderer) plainText(n ast.Node) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(r.source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func (r *pdfRenderer) table(n *extast.Table) {
	var rows [][]string
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, r.translate(r.plainText(cell)))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	const (
		fontSize   = 8.5
		lineHeight = 4.0
		maxLines   = 8
	)

	left, _, right, bottom := r.pdf.GetMargins()
	pageWidth, pageHeight := r.pdf.GetPageSize()
	columns := len(rows[0])
	colWidth := (pageWidth - left - right) / float64(columns)

	r.newLine()
	r.pdf.Ln(2)

	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		r.pdf.SetFont(pdfFont, style, fontSize)

		wrapped := make([][]string, columns)
		height := 1
		for j := 0; j < columns && j < len(row); j++ {
			wrapped[j] = r.pdf.SplitText(row[j], colWidth-2)
			if len(wrapped[j]) > maxLines {
				wrapped[j] = append(wrapped[j][:maxLines-1], wrapped[j][maxLines-1]+"...")
			}
			if len(wrapped[j]) > height {
				height = len(wrapped[j])
			}
		}
		rowHeight := float64(height)*lineHeight + 2

		y := r.pdf.GetY()
		if y+rowHeight > pageHeight-bottom {
			r.pdf.AddPage()
			y = r.pdf.GetY()
		}

		for j := 0; j < columns; j++ {
			x := left + float64(j)*colWidth
			if i == 0 {
				r.pdf.SetFillColor(230, 230, 230)
				r.pdf.Rect(x, y, colWidth, rowHeight, "FD")
			} else {
				r.pdf.Rect(x, y, colWidth, rowHeight, "D")
			}
			for k, line := range wrapped[j] {
				r.pdf.SetXY(x+1, y+1+float64(k)*lineHeight)
				r.pdf.CellFormat(colWidth-2, lineHeight, line, "", 0, "L", false, 0, "")
			}
		}

		r.pdf.SetXY(left, y+rowHeight)
	}

	r.pdf.SetFillColor(255, 255, 255)
	r.pdf.Ln(3)
	r.resetStyle()
}
