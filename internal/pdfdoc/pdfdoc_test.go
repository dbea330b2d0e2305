package pdfdoc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lubereport/internal/domain"
)

var printDay = time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)

func decodeReport(t *testing.T, raw string) domain.Report {
	t.Helper()
	var r domain.Report
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

func TestAssembleSortsClassicEntries(t *testing.T) {
	r := decodeReport(t, `{"sector":"AC/V","tour":"Zone 1","date":"2024-03-06T00:00:00Z",
		"entries":[
			{"machine_tag":"B1","comment":"x","out_of_tour":false},
			{"machine_tag":"A1","comment":"y","out_of_tour":0},
			{"machine_tag":"C1","comment":"","out_of_tour":0},
			{"machine_tag":"Z9","comment":"hors","out_of_tour":1},
			{"machine_tag":"D4","comment":"aussi","out_of_tour":true}
		],
		"safetyEvents":[{"type":"Levage","description":"a"},{"type":"EPI","description":"b"}],
		"heavyEntries":null}`)

	doc := Assemble(r, printDay, Options{Location: time.UTC})
	assert.Equal(t, []Row{{"A1", "y"}, {"B1", "x"}}, doc.Classic)
	assert.Equal(t, []Row{{"D4", "aussi"}, {"Z9", "hors"}}, doc.OutOfTour)
	assert.Equal(t, []Row{{"EPI", "b"}, {"Levage", "a"}}, doc.Safety)
	assert.Equal(t, "Zone 1", doc.Tour)
	assert.Nil(t, doc.Heavy)
	assert.Equal(t, "17/05/2024", doc.PrintDate)
	assert.Equal(t, DefaultTitle, doc.Title)
	assert.Equal(t, "B1", r.Entries[0].MachineTag, "input order is untouched")
}

func TestAssembleHeavySection(t *testing.T) {
	r := decodeReport(t, `{"sector":"AC/V","tour":"Zone 1","date":"2024-03-04T00:00:00Z","entries":[],"safetyEvents":[],
		"heavyEntries":[
			{"machine_tag":"P211A","pression":"3.5","temperature":60,"heure":"08:30","vidange_date":null,"controle_eau":null,"controle_niveau_huile":null,"observation":"bruit"},
			{"machine_tag":"C2","pression":null,"observation":""},
			{"machine_tag":"I520","controle_eau":1,"controle_niveau_huile":true},
			{"machine_tag":"C1"},
			{"machine_tag":"C823A","vidange_date":"2024-02-28"}
		]}`)

	doc := Assemble(r, printDay, Options{Location: time.UTC})
	assert.Equal(t, "", doc.Tour, "heavy prints never show the tour text")
	require.NotNil(t, doc.Heavy)
	assert.Equal(t, []string{"C1", "C2"}, doc.Heavy.RAS)
	assert.Equal(t, "Machines R.A.S. (2) : C1, C2", doc.Heavy.RASSentence())

	require.Len(t, doc.Heavy.Visible, 3)
	assert.Equal(t, "C823A", doc.Heavy.Visible[0].Key)
	assert.Equal(t, "Vidange : 28/02/2024", doc.Heavy.Visible[0].Text)
	assert.Equal(t, "I520", doc.Heavy.Visible[1].Key)
	assert.Equal(t, "Circulation eau : OK   •   Niveau huile GM : OK", doc.Heavy.Visible[1].Text)
	assert.Equal(t, "P211A", doc.Heavy.Visible[2].Key)
	assert.Equal(t, "Pression : 3.5 bar   •   Température : 60 °C   •   Heure : 08:30\nbruit", doc.Heavy.Visible[2].Text)
}

func TestAssembleZeroReadingIsRAS(t *testing.T) {
	r := decodeReport(t, `{"sector":"AC/E","entries":[],"safetyEvents":[],"heavyEntries":[
		{"machine_tag":"P211A","pression":0,"temperature":"0","controle_eau":0},
		{"machine_tag":"P470A","pression":0,"temperature":41}
	]}`)
	doc := Assemble(r, printDay, Options{Location: time.UTC})
	require.NotNil(t, doc.Heavy)
	assert.Equal(t, []string{"P211A"}, doc.Heavy.RAS)
	require.Len(t, doc.Heavy.Visible, 1)
	assert.Equal(t, "Température : 41 °C", doc.Heavy.Visible[0].Text)
}

func TestAssembleEmptyHeavyEntryIsRAS(t *testing.T) {
	r := domain.Report{Sector: domain.SectorACE, HeavyEntries: []domain.HeavyEntry{{MachineTag: "C204", Observation: domain.StringPtr("")}}}
	doc := Assemble(r, printDay, Options{})
	require.NotNil(t, doc.Heavy)
	assert.Empty(t, doc.Heavy.Visible)
	assert.Equal(t, []string{"C204"}, doc.Heavy.RAS)
}

func TestCollectPhotosOrderAndLabels(t *testing.T) {
	r := domain.Report{
		Entries: []domain.EntryRecord{
			{MachineTag: "A1", Images: []string{"e1", "e2"}},
			{Image: "legacy"},
			{MachineTag: "B2", Images: []string{}, Image: "ignored"},
		},
		SafetyEvents: []domain.SafetyEvent{{Type: "EPI", Images: []string{"s1"}}, {Images: []string{"s2"}}},
		HeavyEntries: []domain.HeavyEntry{{MachineTag: "P211A", Images: []string{"h1"}}},
	}
	photos := collectPhotos(r)
	assert.Equal(t, []Photo{
		{Label: "A1", Data: "e1"},
		{Label: "A1", Data: "e2"},
		{Label: "Photo 2", Data: "legacy"},
		{Label: "EPI", Data: "s1"},
		{Label: "Photo 5-1", Data: "s2"},
		{Label: "P211A", Data: "h1"},
	}, photos)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Rapport AC-V 2024-05-17.pdf", FileName(domain.SectorACV, printDay))
}

func TestFitCentered(t *testing.T) {
	x, y, w, h := fitCentered(400, 200, 210, 297, 15)
	assert.InDelta(t, 180, w, 0.001)
	assert.InDelta(t, 90, h, 0.001)
	assert.InDelta(t, 15, x, 0.001)
	assert.InDelta(t, (297-90)/2.0, y, 0.001)

	_, _, w, h = fitCentered(100, 1000, 210, 297, 15)
	assert.InDelta(t, 267, h, 0.001)
	assert.InDelta(t, 26.7, w, 0.001)
}

func dataURI(t *testing.T, mime string, encode func(*bytes.Buffer, image.Image) error) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: 100, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRenderSkipsBrokenPhotos(t *testing.T) {
	pngURI := dataURI(t, "image/png", func(b *bytes.Buffer, img image.Image) error { return png.Encode(b, img) })
	jpgURI := dataURI(t, "image/jpeg", func(b *bytes.Buffer, img image.Image) error { return jpeg.Encode(b, img, nil) })

	r := domain.Report{
		Sector: domain.SectorACV,
		Tour:   "Zone 4 : pompes et compresseurs du bâtiment est",
		Entries: []domain.EntryRecord{
			{MachineTag: "C283", Comment: "Fuite d'huile côté accouplement", Images: []string{pngURI, "data:image/png;base64,!!!"}},
		},
		SafetyEvents: []domain.SafetyEvent{{Type: "EPI", Description: "Gants absents", Images: []string{jpgURI, "not a uri"}}},
	}
	doc := Assemble(r, printDay, Options{Location: time.UTC})
	require.Len(t, doc.Photos, 4)

	pdf, err := draw(context.Background(), doc)
	require.NoError(t, err)
	// one content page and the two decodable photos
	assert.Equal(t, 3, pdf.PageCount())

	out, err := RenderBytes(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderPaginatesLongTables(t *testing.T) {
	var entries []domain.EntryRecord
	for i := 0; i < 120; i++ {
		entries = append(entries, domain.EntryRecord{
			MachineTag: "M" + strings.Repeat("0", i%3),
			Comment:    strings.Repeat("observation longue ", 8),
		})
	}
	doc := Assemble(domain.Report{Sector: domain.SectorACE, Entries: entries}, printDay, Options{})

	pdf, err := draw(context.Background(), doc)
	require.NoError(t, err)
	assert.Greater(t, pdf.PageCount(), 2)
}

func TestRenderSplitsRowTallerThanPage(t *testing.T) {
	lines := make([]string, 120)
	for i := range lines {
		lines[i] = fmt.Sprintf("ligne %d : contrôle du graissage", i+1)
	}
	doc := Assemble(domain.Report{
		Sector:  domain.SectorACV,
		Entries: []domain.EntryRecord{{MachineTag: "C283", Comment: strings.Join(lines, "\n")}},
	}, printDay, Options{})

	pdf, err := draw(context.Background(), doc)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pdf.PageCount(), 3)

	r := newRenderer(context.Background())
	r.pdf.AddPage()
	r.y = 55
	r.table(classicStyle, doc.Classic)
	require.False(t, r.pdf.Err())
	assert.GreaterOrEqual(t, r.pdf.PageCount(), 3)
	assert.LessOrEqual(t, r.y, r.pageH-pageMargin+6)
}

func TestWrapKeepsNewlinesAndInnerSpaces(t *testing.T) {
	r := newRenderer(context.Background())
	r.pdf.AddPage()
	r.pdf.SetFont(fontFamily, "", 9)

	assert.Equal(t, []string{"a  b", "", "c"}, r.wrap("a  b\n\nc", 100))
	assert.Equal(t, []string{""}, r.wrap("", 100))

	long := strings.Repeat("graissage ", 40)
	for _, line := range r.wrap(long, 50) {
		assert.LessOrEqual(t, r.pdf.GetStringWidth(line), 50.1)
	}
	assert.Equal(t, []string{r.tr("côté €")}, r.wrap("côté €", 100))
}
