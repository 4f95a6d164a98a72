package vision

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// TesseractRecognizer runs the tesseract OCR binary in TSV mode and parses
// word-level regions out of its output.
type TesseractRecognizer struct {
	// Binary overrides the tesseract executable path; defaults to
	// "tesseract" on PATH.
	Binary string
}

// NewTesseractRecognizer returns a recognizer using tesseract from PATH.
func NewTesseractRecognizer() *TesseractRecognizer {
	return &TesseractRecognizer{Binary: "tesseract"}
}

// Recognize OCRs the image and returns its word regions in reading order.
func (t *TesseractRecognizer) Recognize(ctx context.Context, imagePath string) ([]TextRegion, error) {
	binary := t.Binary
	if binary == "" {
		binary = "tesseract"
	}
	cmd := exec.CommandContext(ctx, binary, imagePath, "stdout", "tsv")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tesseract failed: %w", err)
	}
	return parseTSV(string(output)), nil
}

// parseTSV extracts word entries (level 5) from tesseract TSV output.
// Tesseract restarts line numbering per paragraph, so a flat line index is
// synthesized from the (block, paragraph, line) triple.
func parseTSV(output string) []TextRegion {
	var regions []TextRegion
	lineIDs := make(map[string]int)

	for i, row := range strings.Split(output, "\n") {
		if i == 0 {
			continue // header
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" { // word level
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		key := cols[2] + "/" + cols[3] + "/" + cols[4]
		id, ok := lineIDs[key]
		if !ok {
			id = len(lineIDs)
			lineIDs[key] = id
		}
		left, _ := strconv.Atoi(cols[6])
		top, _ := strconv.Atoi(cols[7])
		width, _ := strconv.Atoi(cols[8])
		height, _ := strconv.Atoi(cols[9])
		word, _ := strconv.Atoi(cols[5])
		regions = append(regions, TextRegion{
			Text: text,
			Box:  Box{Left: left, Top: top, Width: width, Height: height},
			Line: id,
			Word: word,
		})
	}
	return regions
}
