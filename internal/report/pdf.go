package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/blfgate/internal/blf"
	"example.com/blfgate/internal/common"
)

// maxPDFErrors limits the error list; the JSON report keeps all of them.
const maxPDFErrors = 50

type labelValue struct {
	label string
	value string
}

// SavePDF renders the report into a PDF document.
func SavePDF(rep DecodeReport, out string, lang Language) error {
	t := NewTranslator(lang)
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(key string) string { return tr(t.T(key)) }

	pdf.SetTitle(t.T("title"), true)
	pdf.SetAuthor("blfctl", false)
	pdf.SetCreator("blfctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, text("title"))
	addFileSection(pdf, rep, t, tr)
	addHeaderSection(pdf, rep.Header, t, tr)
	addMessagesSection(pdf, rep.Summary, t, tr)
	addIntegritySection(pdf, rep, t, tr)
	addOtherSection(pdf, rep.Summary, t, tr)
	addErrorsSection(pdf, rep.Summary, t, tr)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
}

func addLabelValues(pdf *gofpdf.Fpdf, items []labelValue) {
	pdf.SetFont("Helvetica", "", 11)
	for _, item := range items {
		pdf.CellFormat(55, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, emptyFallback(item.value, "-"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addFileSection(pdf *gofpdf.Fpdf, rep DecodeReport, t Translator, tr func(string) string) {
	addSectionTitle(pdf, tr(t.T("section.file")))
	top := pdf.GetY()
	addLabelValues(pdf, []labelValue{
		{tr(t.T("label.file")), tr(rep.File)},
		{tr(t.T("label.size")), fmt.Sprintf("%s (%d B)", common.FormatBytes(rep.Size), rep.Size)},
		{tr(t.T("label.sha256")), shortHash(rep.SHA256)},
		{tr(t.T("label.generated")), formatTime(rep.GeneratedAt, t, tr)},
	})
	png, err := HashToQR(rep.SHA256, 256)
	if err != nil {
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("sha256-qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	const qrSize = 28.0
	pdf.ImageOptions("sha256-qr", pageW-right-qrSize, top, qrSize, qrSize, false, opts, 0, "")
	if pdf.GetY() < top+qrSize {
		pdf.SetY(top + qrSize + 2)
	}
}

func addHeaderSection(pdf *gofpdf.Fpdf, hdr blf.FileHeader, t Translator, tr func(string) string) {
	addSectionTitle(pdf, tr(t.T("section.header")))
	addLabelValues(pdf, []labelValue{
		{tr(t.T("label.application")), fmt.Sprintf("%d / %s", hdr.ApplicationID, hdr.ApplicationVersion())},
		{tr(t.T("label.binlog")), hdr.BinLogVersion()},
		{tr(t.T("label.start")), formatTime(hdr.Start.Time(), t, tr)},
		{tr(t.T("label.stop")), formatTime(hdr.Stop.Time(), t, tr)},
		{tr(t.T("label.objectCount")), strconv.FormatUint(uint64(hdr.ObjectCount), 10)},
	})
}

func addMessagesSection(pdf *gofpdf.Fpdf, sum blf.Summary, t Translator, tr func(string) string) {
	addSectionTitle(pdf, tr(t.T("section.messages")))
	headers := []string{tr(t.T("table.kind")), tr(t.T("table.count"))}
	widths := []float64{60, 40}
	addTableHeader(pdf, headers, widths)
	pdf.SetFont("Helvetica", "", 10)
	for _, k := range blf.Kinds {
		renderTableRow(pdf, widths, []string{tr(t.T("kind." + string(k))), strconv.FormatInt(sum.Count(k), 10)}, 5)
	}
	pdf.Ln(4)
}

func addIntegritySection(pdf *gofpdf.Fpdf, rep DecodeReport, t Translator, tr func(string) string) {
	s := rep.Summary
	addSectionTitle(pdf, tr(t.T("section.integrity")))
	status := t.T("status.recovered")
	if rep.Clean() {
		status = t.T("status.clean")
	}
	count := func(v int64) string { return strconv.FormatInt(v, 10) }
	addLabelValues(pdf, []labelValue{
		{tr(t.T("label.status")), tr(status)},
		{tr(t.T("label.containers")), count(s.Containers)},
		{tr(t.T("label.skippedContainers")), count(s.SkippedContainers)},
		{tr(t.T("label.objects")), count(s.Objects)},
		{tr(t.T("label.skippedObjects")), count(s.SkippedObjects)},
		{tr(t.T("label.compact")), count(s.CompactHeaders)},
		{tr(t.T("label.mislabeled")), count(s.MislabeledHeaders)},
		{tr(t.T("label.unsupported")), count(s.UnsupportedHeaderVersions)},
		{tr(t.T("label.resyncs")), count(s.Resyncs)},
		{tr(t.T("label.skippedTopLevel")), count(s.SkippedTopLevel)},
	})
}

func addOtherSection(pdf *gofpdf.Fpdf, sum blf.Summary, t Translator, tr func(string) string) {
	if len(sum.OtherByType) == 0 {
		return
	}
	addSectionTitle(pdf, tr(t.T("section.other")))
	types := make([]blf.ObjectType, 0, len(sum.OtherByType))
	for typ := range sum.OtherByType {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	widths := []float64{80, 40}
	addTableHeader(pdf, []string{tr(t.T("table.objectType")), tr(t.T("table.count"))}, widths)
	pdf.SetFont("Helvetica", "", 10)
	for _, typ := range types {
		name := fmt.Sprintf("%s (%d)", typ, uint32(typ))
		renderTableRow(pdf, widths, []string{name, strconv.FormatInt(sum.OtherByType[typ], 10)}, 5)
	}
	pdf.Ln(4)
}

func addErrorsSection(pdf *gofpdf.Fpdf, sum blf.Summary, t Translator, tr func(string) string) {
	addSectionTitle(pdf, tr(t.T("section.errors")))
	if len(sum.Errors) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(t.T("errors.none")), "", "L", false)
		return
	}
	widths := []float64{24, 46, 110}
	addTableHeader(pdf, []string{tr(t.T("table.level")), tr(t.T("table.location")), tr(t.T("table.error"))}, widths)
	pdf.SetFont("Helvetica", "", 9)
	shown := sum.Errors
	if len(shown) > maxPDFErrors {
		shown = shown[:maxPDFErrors]
	}
	for _, e := range shown {
		renderTableRow(pdf, widths, []string{string(e.Level), errorLocation(e), tr(errorText(e))}, 4.5)
	}
	if dropped := sum.ErrorsDropped + int64(len(sum.Errors)-len(shown)); dropped > 0 {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr(t.Format("errors.dropped", dropped)), "", "L", false)
	}
}

func addTableHeader(pdf *gofpdf.Fpdf, headers []string, widths []float64) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func errorLocation(e *blf.DecodeError) string {
	switch e.Level {
	case blf.LevelFile:
		return "-"
	case blf.LevelContainer:
		return fmt.Sprintf("@%d", e.Container)
	default:
		return fmt.Sprintf("@%d +%d %s", e.Container, e.Offset, e.ObjectType)
	}
}

func errorText(e *blf.DecodeError) string {
	if e.Err == nil {
		return "-"
	}
	return e.Err.Error()
}

func formatTime(ts time.Time, t Translator, tr func(string) string) string {
	if ts.IsZero() {
		return tr(t.T("value.unset"))
	}
	return ts.Format("2006-01-02 15:04:05.000 MST")
}

// shortHash abbreviates a digest to fit the value column; the QR code
// carries the full value.
func shortHash(h string) string {
	if len(h) <= 35 {
		return h
	}
	return h[:16] + "..." + h[len(h)-16:]
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
