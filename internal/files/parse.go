package files

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// SupportedExtensions lists the file types Parse understands.
var SupportedExtensions = []string{".txt", ".md", ".csv", ".pdf", ".docx", ".xlsx"}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// Parse extracts plain text from an uploaded document, dispatching on the
// filename extension.
func Parse(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		return string(data), nil
	case ".csv":
		return parseCSV(data)
	case ".pdf":
		return parsePDF(data)
	case ".docx":
		return parseDOCX(data)
	case ".xlsx":
		return parseXLSX(data)
	default:
		return "", fmt.Errorf("unsupported file type %q (supported: %s)",
			filepath.Ext(filename), strings.Join(SupportedExtensions, ", "))
	}
}

func parseCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	var lines []string
	for _, record := range records {
		lines = append(lines, strings.Join(record, ", "))
	}
	return strings.Join(lines, "\n"), nil
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	text, err := io.ReadAll(textReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(text), nil
}

func parseDOCX(data []byte) (string, error) {
	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	defer reader.Close()

	content := reader.Editable().GetContent()
	// GetContent returns the raw document XML; paragraph boundaries become
	// newlines and remaining tags are stripped.
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = xmlTagPattern.ReplaceAllString(content, "")
	return strings.TrimSpace(html.UnescapeString(content)), nil
}

func parseXLSX(data []byte) (string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse xlsx: %w", err)
	}
	defer workbook.Close()

	var builder strings.Builder
	for _, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		builder.WriteString("Sheet: " + sheet + "\n")
		for _, row := range rows {
			builder.WriteString(strings.Join(row, ", "))
			builder.WriteString("\n")
		}
	}
	return strings.TrimSpace(builder.String()), nil
}
