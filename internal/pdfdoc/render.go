package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"
)

const (
	pageMargin = 15.0
	cellPad    = 2.0
	lineHeight = 4.2
	fontFamily = "Helvetica"
)

type rgb struct{ r, g, b int }

var (
	black = rgb{0, 0, 0}
	white = rgb{255, 255, 255}
)

type tableStyle struct {
	heading      string
	headingColor rgb
	columns      [2]string
	keyWidth     float64
	headFill     rgb
	headText     rgb
	altFill      rgb
}

var (
	classicStyle = tableStyle{
		columns:  [2]string{"Machine", "Observation"},
		keyWidth: 20,
		headFill: rgb{0, 51, 102},
		headText: white,
		altFill:  rgb{245, 245, 245},
	}
	heavyStyle = tableStyle{
		heading:      "Tournée grosses machines :",
		headingColor: rgb{102, 51, 153},
		columns:      [2]string{"Machine", "Mesures / Observations"},
		keyWidth:     25,
		headFill:     rgb{102, 51, 153},
		headText:     white,
		altFill:      rgb{245, 245, 255},
	}
	outOfTourStyle = tableStyle{
		heading:      "Hors tournée :",
		headingColor: rgb{180, 130, 0},
		columns:      [2]string{"Machine", "Observation"},
		keyWidth:     35,
		headFill:     rgb{255, 204, 0},
		headText:     black,
		altFill:      rgb{255, 253, 230},
	}
	safetyStyle = tableStyle{
		heading:      "Sécurité :",
		headingColor: rgb{153, 0, 0},
		columns:      [2]string{"Type", "Description"},
		keyWidth:     35,
		headFill:     rgb{204, 0, 0},
		headText:     white,
		altFill:      rgb{255, 240, 240},
	}
)

type renderer struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	pageW  float64
	pageH  float64
	y      float64
	logger *zerolog.Logger
}

// Render writes doc as an A4 portrait PDF. Photos that cannot be decoded are
// skipped; only a failure of the PDF writer itself is returned.
func Render(ctx context.Context, w io.Writer, doc Document) error {
	pdf, err := draw(ctx, doc)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

func draw(ctx context.Context, doc Document) (*fpdf.Fpdf, error) {
	r := newRenderer(ctx)
	pdf := r.pdf
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("lubereport", true)

	pdf.AddPage()
	r.header(doc)
	if len(doc.Classic) > 0 {
		r.table(classicStyle, doc.Classic)
	}
	if doc.Heavy != nil {
		r.heavy(*doc.Heavy)
	}
	if len(doc.OutOfTour) > 0 {
		r.table(outOfTourStyle, doc.OutOfTour)
	}
	if len(doc.Safety) > 0 {
		r.table(safetyStyle, doc.Safety)
	}
	if pdf.Err() {
		return nil, fmt.Errorf("render report: %w", pdf.Error())
	}
	for i, p := range doc.Photos {
		r.photo(i, p)
	}
	return pdf, nil
}

func newRenderer(ctx context.Context) *renderer {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	r := &renderer{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		logger: zerolog.Ctx(ctx),
	}
	r.pageW, r.pageH = pdf.GetPageSize()
	return r
}

// RenderBytes is Render into memory.
func RenderBytes(ctx context.Context, doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(ctx, &buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *renderer) header(doc Document) {
	pdf := r.pdf
	if doc.Logo != "" {
		pdf.ImageOptions(doc.Logo, 8, 5, 60, 22.5, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
		if pdf.Err() {
			r.logger.Warn().Err(pdf.Error()).Str("logo", doc.Logo).Msg("logo skipped")
			pdf.ClearError()
		}
	}
	r.color(black)
	pdf.SetFont(fontFamily, "B", 12)
	r.text(160, 15, "Secteur : "+doc.Sector)
	r.text(160, 20, "Date : "+doc.PrintDate)
	pdf.SetFont(fontFamily, "B", 16)
	r.text(60, 35, doc.Title)

	if doc.Tour == "" {
		r.y = 55
		return
	}
	pdf.SetFont(fontFamily, "B", 10)
	r.centered(45, "Tournée du jour :")
	pdf.SetFont(fontFamily, "", 9)
	lines := r.wrap(doc.Tour, r.pageW-30)
	for i, line := range lines {
		r.put((r.pageW-pdf.GetStringWidth(line))/2, 50+float64(i)*5, line)
	}
	r.y = 50 + float64(len(lines))*5 + 4
}

func (r *renderer) heavy(h HeavySection) {
	r.table(heavyStyle, h.Visible)
	if len(h.RAS) == 0 {
		return
	}
	pdf := r.pdf
	label := h.RASLabel()
	maxW := r.pageW - 2*pageMargin
	pdf.SetFont(fontFamily, "B", 10)
	lines := r.wrap(h.RASSentence(), maxW)
	encLabel := r.tr(label)
	for i, line := range lines {
		r.ensure(5)
		if i == 0 && strings.HasPrefix(line, encLabel) {
			pdf.SetFont(fontFamily, "B", 10)
			r.color(rgb{0, 128, 0})
			r.put(pageMargin, r.y, encLabel)
			offset := pdf.GetStringWidth(encLabel + " ")
			pdf.SetFont(fontFamily, "", 10)
			r.color(black)
			r.put(pageMargin+offset, r.y, strings.TrimPrefix(line, encLabel+" "))
		} else {
			pdf.SetFont(fontFamily, "", 10)
			r.color(black)
			r.put(pageMargin, r.y, line)
		}
		r.y += 5
	}
	r.y += 4
}

// table draws a two-column table, repeating the header row on every page.
// An empty table still prints its heading and header row. A row taller than
// a page is split across pages.
func (r *renderer) table(style tableStyle, rows []Row) {
	pdf := r.pdf
	if style.heading != "" {
		r.ensure(12)
		pdf.SetFont(fontFamily, "B", 10)
		r.color(style.headingColor)
		r.text(pageMargin, r.y, style.heading)
		r.color(black)
		r.y += 2
	}
	textW := r.pageW - 2*pageMargin - style.keyWidth
	headH := lineHeight + 2*cellPad
	perPage := max(int((r.pageH-2*pageMargin-headH-2*cellPad)/lineHeight), 1)

	r.ensure(headH)
	r.headerRow(style, textW)
	pdf.SetFont(fontFamily, "", 9)
	for i, row := range rows {
		keyLines := r.wrap(row.Key, style.keyWidth-2*cellPad)
		textLines := r.wrap(row.Text, textW-2*cellPad)
		n := max(len(keyLines), len(textLines))
		for start := 0; start < n; {
			left := n - start
			fit := r.linesLeft()
			if fit < left && (left <= perPage || fit < 1) {
				pdf.AddPage()
				r.y = pageMargin
				r.headerRow(style, textW)
				pdf.SetFont(fontFamily, "", 9)
				fit = r.linesLeft()
			}
			k := max(min(left, fit), 1)
			h := float64(k)*lineHeight + 2*cellPad
			if i%2 == 1 {
				pdf.SetFillColor(style.altFill.r, style.altFill.g, style.altFill.b)
				pdf.Rect(pageMargin, r.y, r.pageW-2*pageMargin, h, "F")
			}
			r.color(black)
			r.cellLines(pageMargin, r.y, window(keyLines, start, k))
			r.cellLines(pageMargin+style.keyWidth, r.y, window(textLines, start, k))
			r.y += h
			start += k
		}
	}
	r.y += 6
}

// linesLeft is how many table lines still fit above the bottom margin.
func (r *renderer) linesLeft() int {
	return int((r.pageH - pageMargin - r.y - 2*cellPad) / lineHeight)
}

func window(lines []string, start, k int) []string {
	lo := min(start, len(lines))
	hi := min(start+k, len(lines))
	return lines[lo:hi]
}

func (r *renderer) headerRow(style tableStyle, textW float64) {
	pdf := r.pdf
	h := lineHeight + 2*cellPad
	pdf.SetFillColor(style.headFill.r, style.headFill.g, style.headFill.b)
	pdf.Rect(pageMargin, r.y, style.keyWidth+textW, h, "F")
	pdf.SetFont(fontFamily, "B", 9)
	r.color(style.headText)
	r.cellLines(pageMargin, r.y, []string{r.tr(style.columns[0])})
	r.cellLines(pageMargin+style.keyWidth, r.y, []string{r.tr(style.columns[1])})
	r.color(black)
	r.y += h
}

func (r *renderer) cellLines(x, top float64, lines []string) {
	for i, line := range lines {
		// Text places the baseline; shift by roughly the cap height.
		r.put(x+cellPad, top+cellPad+float64(i)*lineHeight+lineHeight*0.75, line)
	}
}

func (r *renderer) photo(i int, p Photo) {
	pdf := r.pdf
	log := r.logger.With().Int("photo", i+1).Str("label", p.Label).Logger()
	img, err := prepareImage(p.Data)
	if err != nil {
		log.Warn().Err(err).Msg("photo skipped")
		return
	}
	name := fmt.Sprintf("photo-%d", i)
	pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: img.kind}, bytes.NewReader(img.data))
	if pdf.Err() {
		log.Warn().Err(pdf.Error()).Msg("photo skipped")
		pdf.ClearError()
		return
	}
	pdf.AddPage()
	pdf.SetFont(fontFamily, "", 10)
	r.color(black)
	r.text(10, 10, "Photo - "+p.Label)
	x, y, w, h := fitCentered(float64(img.width), float64(img.height), r.pageW, r.pageH, pageMargin)
	pdf.ImageOptions(name, x, y, w, h, false, fpdf.ImageOptions{ImageType: img.kind}, 0, "")
}

// ensure starts a new page when fewer than h millimetres remain.
func (r *renderer) ensure(h float64) {
	if r.y+h > r.pageH-pageMargin {
		r.pdf.AddPage()
		r.y = pageMargin
	}
}

func (r *renderer) color(c rgb) {
	r.pdf.SetTextColor(c.r, c.g, c.b)
}

func (r *renderer) text(x, y float64, s string) {
	r.pdf.Text(x, y, r.tr(s))
}

func (r *renderer) centered(y float64, s string) {
	r.text((r.pageW-r.width(s))/2, y, s)
}

func (r *renderer) width(s string) float64 {
	return r.pdf.GetStringWidth(r.tr(s))
}

// put draws s, already in the font encoding.
func (r *renderer) put(x, y float64, s string) {
	r.pdf.Text(x, y, s)
}

// wrap breaks text into lines no wider than width with the current font.
// Explicit newlines are kept. The lines come back in the font encoding and
// are drawn with put.
func (r *renderer) wrap(text string, width float64) []string {
	// SplitLines measures against width less both cell margins.
	w := width + 2*r.pdf.GetCellMargin()
	var out []string
	for _, para := range strings.Split(text, "\n") {
		lines := r.pdf.SplitLines([]byte(r.tr(para)), w)
		if len(lines) == 0 {
			out = append(out, "")
			continue
		}
		for _, line := range lines {
			out = append(out, string(line))
		}
	}
	return out
}
