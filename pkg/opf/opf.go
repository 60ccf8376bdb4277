// Package opf writes the EPUB-2 style OPF sidecar the processor drops
// next to every imported book (§6 "Sidecar files"). Go's ecosystem has no
// ready-made OPF writer; encoding/xml's literal tag names ("dc:title")
// are enough to emit the fixed namespace prefixes OPF expects without a
// real namespace-aware XML layer.
package opf

import (
	"encoding/xml"

	"github.com/bookarr/bookarr/internal/models"
)

// package element's fixed namespace declarations.
const (
	dcNamespace  = "http://purl.org/dc/elements/1.1/"
	opfNamespace = "http://www.idpf.org/2007/opf"
)

type document struct {
	XMLName          xml.Name `xml:"package"`
	Version          string   `xml:"version,attr"`
	UniqueIdentifier string   `xml:"unique-identifier,attr"`
	Metadata         metadata `xml:"metadata"`
	Manifest         manifest `xml:"manifest"`
	Spine            spine    `xml:"spine"`
}

type metadata struct {
	XmlnsDC      string        `xml:"xmlns:dc,attr"`
	XmlnsOPF     string        `xml:"xmlns:opf,attr"`
	Title        string        `xml:"dc:title"`
	Creators     []creator     `xml:"dc:creator"`
	Contributors []contributor `xml:"dc:contributor"`
	Description  string        `xml:"dc:description,omitempty"`
	Format       string        `xml:"dc:format,omitempty"`
	Language     string        `xml:"dc:language,omitempty"`
	Date         string        `xml:"dc:date,omitempty"`
	Identifier   identifier    `xml:"dc:identifier"`
	Series       []seriesMeta  `xml:"meta"`
}

type creator struct {
	Role   string `xml:"opf:role,attr"`
	FileAs string `xml:"opf:file-as,attr"`
	Name   string `xml:",chardata"`
}

type contributor struct {
	Role   string `xml:"opf:role,attr"`
	FileAs string `xml:"opf:file-as,attr"`
	Name   string `xml:",chardata"`
}

type identifier struct {
	ID     string `xml:"id,attr"`
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

type seriesMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type item struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type manifest struct {
	Items []item `xml:"item"`
}

type itemRef struct {
	IDRef string `xml:"idref,attr"`
}

type spine struct {
	Toc      string    `xml:"toc,attr"`
	ItemRefs []itemRef `xml:"itemref"`
}

// IdentifierSystem names the scheme of the book's primary identifier, per
// §6's "ASIN|MAM" system attribute.
type IdentifierSystem string

const (
	IdentifierASIN IdentifierSystem = "ASIN"
	IdentifierMAM  IdentifierSystem = "MAM"
)

// Build renders book into the OPF document bytes, UTF-8 with the XML
// declaration, indented for human readability.
func Build(book *models.Book, system IdentifierSystem) ([]byte, error) {
	md := metadata{
		XmlnsDC:     dcNamespace,
		XmlnsOPF:    opfNamespace,
		Title:       book.Title,
		Description: book.Description,
		Language:    book.Language,
		Identifier:  identifier{ID: "bookid", System: string(system), Value: book.ASIN},
	}
	for _, a := range book.Authors {
		md.Creators = append(md.Creators, creator{Role: "aut", FileAs: a, Name: a})
	}
	for _, n := range book.Narrators {
		md.Contributors = append(md.Contributors, contributor{Role: "nrt", FileAs: n, Name: n})
	}
	if book.ReleaseDate != nil {
		md.Date = book.ReleaseDate.Format("2006-01-02")
	}
	for i, s := range book.Series {
		md.Series = append(md.Series, seriesMeta{Name: "calibre:series", Content: s})
		if i == 0 && book.SeriesIndex != "" {
			md.Series = append(md.Series, seriesMeta{Name: "calibre:series_index", Content: book.SeriesIndex})
		}
	}

	doc := document{
		Version:          "2.0",
		UniqueIdentifier: "bookid",
		Metadata:         md,
		Manifest: manifest{Items: []item{
			{ID: "ncx", Href: "toc.ncx", MediaType: "application/x-dtbncx+xml"},
			{ID: "dummy", Href: "dummy.html", MediaType: "application/xhtml+xml"},
		}},
		Spine: spine{Toc: "ncx", ItemRefs: []itemRef{{IDRef: "dummy"}}},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	out := append([]byte(xml.Header), body...)
	return out, nil
}
