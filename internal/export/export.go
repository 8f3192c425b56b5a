// Package export renders transfer history for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/Dan9191/bank-cards/internal/models"
)

// Format is an export file format
type Format string

// Supported formats.
const (
	FormatXML Format = "xml"
	FormatCSV Format = "csv"
)

// Valid reports whether f is a supported format
func (f Format) Valid() bool {
	return f == FormatXML || f == FormatCSV
}

// ContentType returns the MIME type for f
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/xml; charset=utf-8"
}

// Document is one user's transfer history
type Document struct {
	UserID      int64
	GeneratedAt time.Time
	Transfers   []models.Transfer
}

var csvHeader = []string{
	"id", "created_at", "processed_at", "from_card", "to_card", "amount", "status", "description", "error",
}

// Write renders doc to w in the requested format
func Write(w io.Writer, format Format, doc Document) error {
	switch format {
	case FormatXML:
		return writeXML(w, doc)
	case FormatCSV:
		return writeCSV(w, doc)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func writeXML(w io.Writer, doc Document) error {
	x := etree.NewDocument()
	x.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := x.CreateElement("TransferHistory")
	root.CreateAttr("userId", strconv.FormatInt(doc.UserID, 10))
	root.CreateAttr("generatedAt", doc.GeneratedAt.UTC().Format(time.RFC3339))
	root.CreateAttr("count", strconv.Itoa(len(doc.Transfers)))

	for _, t := range doc.Transfers {
		el := root.CreateElement("Transfer")
		el.CreateAttr("id", strconv.FormatInt(t.ID, 10))
		el.CreateAttr("status", string(t.Status))
		el.CreateElement("CreatedAt").SetText(t.CreatedAt.UTC().Format(time.RFC3339))
		if t.ProcessedAt != nil {
			el.CreateElement("ProcessedAt").SetText(t.ProcessedAt.UTC().Format(time.RFC3339))
		}
		from := el.CreateElement("FromCard")
		from.CreateAttr("id", strconv.FormatInt(t.FromCardID, 10))
		from.SetText(t.FromCardMasked)
		to := el.CreateElement("ToCard")
		to.CreateAttr("id", strconv.FormatInt(t.ToCardID, 10))
		to.SetText(t.ToCardMasked)
		el.CreateElement("Amount").SetText(t.Amount.StringFixed(2))
		if t.Description != "" {
			el.CreateElement("Description").SetText(t.Description)
		}
		if t.ErrorMessage != nil {
			el.CreateElement("Error").SetText(*t.ErrorMessage)
		}
	}

	x.Indent(2)
	if _, err := x.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xml: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, t := range doc.Transfers {
		var processed, errMsg string
		if t.ProcessedAt != nil {
			processed = t.ProcessedAt.UTC().Format(time.RFC3339)
		}
		if t.ErrorMessage != nil {
			errMsg = *t.ErrorMessage
		}
		record := []string{
			strconv.FormatInt(t.ID, 10),
			t.CreatedAt.UTC().Format(time.RFC3339),
			processed,
			t.FromCardMasked,
			t.ToCardMasked,
			t.Amount.StringFixed(2),
			string(t.Status),
			t.Description,
			errMsg,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
