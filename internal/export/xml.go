package export

import (
	"context"
	"encoding/xml"
	"os"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"
)

type xmlItem struct {
	XMLName xml.Name `xml:"item"`
	Price1  string   `xml:"price1"`
	Price2  string   `xml:"price2"`
	Name    string   `xml:"name"`
	SKU     string   `xml:"sku"`
	product.Details
}

type xmlDocument struct {
	XMLName xml.Name `xml:"items"`
	Items   []xmlItem
}

// XMLWriter writes <items><item>...</item></items>
type XMLWriter struct{}

func NewXMLWriter() *XMLWriter {
	return &XMLWriter{}
}

func (w *XMLWriter) Format() string {
	return FormatXML
}

func (w *XMLWriter) Destination(outputDir, baseName string) string {
	return fileDestination(outputDir, baseName, FormatXML)
}

func (w *XMLWriter) Write(ctx context.Context, records []product.ExportRecord, dest string) error {
	doc := xmlDocument{Items: make([]xmlItem, 0, len(records))}
	for _, r := range records {
		doc.Items = append(doc.Items, xmlItem{
			Price1:  r.Price1,
			Price2:  r.Price2,
			Name:    r.Name,
			SKU:     r.SKU,
			Details: r.Details,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewExport(dest, "encode xml", err)
	}
	data := append([]byte(xml.Header), body...)
	data = append(data, '\n')

	if err := writeFile(dest, data); err != nil {
		return errors.NewExport(dest, "write xml", err)
	}
	return nil
}

// writeFile creates the parent directory and writes data
func writeFile(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
