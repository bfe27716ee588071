package impl

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/ragdock/models"
)

const (
	charsPerToken    = 4
	chunkTokens      = 500
	overlapTokens    = 100
	chunkChars       = chunkTokens * charsPerToken   // 2000
	overlapChars     = overlapTokens * charsPerToken // 400
	rowGapThreshold  = 2.0                           // Y-delta that starts a new line
)

var pageMarkerRe = regexp.MustCompile(`\[Page (\d+)\]`)

// Chunker turns a PDF into annotated text and splits that text into
// overlapping, token-bounded chunks with page attribution.
type Chunker struct{}

func NewChunker() *Chunker {
	return &Chunker{}
}

// ExtractPDF renders a PDF into plain text with a "[Page N]" marker at
// the start of each page. Rows are ordered top-to-bottom, left-to-right;
// words on the same visual line are joined with single spaces.
func (c *Chunker) ExtractPDF(ctx context.Context, r io.ReaderAt, size int64) (string, error) {
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	total := doc.NumPage()

	for pageNum := 1; pageNum <= total; pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("pdf extraction cancelled on page %d: %w", pageNum, err)
		}

		page := doc.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		sb.WriteString(fmt.Sprintf("[Page %d]\n", pageNum))

		texts := page.Content().Text
		if len(texts) == 0 {
			continue
		}

		// Sort by Y descending (PDF origin is bottom-left), then X
		sort.SliceStable(texts, func(i, j int) bool {
			if texts[i].Y != texts[j].Y {
				return texts[i].Y > texts[j].Y
			}
			return texts[i].X < texts[j].X
		})

		lastY := texts[0].Y
		var line strings.Builder
		for _, t := range texts {
			if lastY-t.Y > rowGapThreshold {
				sb.WriteString(strings.TrimRight(line.String(), " "))
				sb.WriteString("\n")
				line.Reset()
				lastY = t.Y
			}
			if t.S == " " || t.S == "" {
				if line.Len() > 0 && !strings.HasSuffix(line.String(), " ") {
					line.WriteString(" ")
				}
				continue
			}
			line.WriteString(t.S)
		}
		if line.Len() > 0 {
			sb.WriteString(strings.TrimRight(line.String(), " "))
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}

// PositionedChunk is a chunk with its provenance in the extracted text
type PositionedChunk struct {
	Index      int
	Content    string
	CharStart  int
	CharEnd    int
	PageNumber int
}

// Chunk splits annotated text into ~500-token pieces with ~100-token
// overlap. Splitting prefers paragraph boundaries, then sentences, then
// words. Output is deterministic for a given input.
func (c *Chunker) Chunk(text string) []PositionedChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	markers := findPageMarkers(text)

	var chunks []PositionedChunk
	start := 0
	index := 0

	for start < len(text) {
		end := start + chunkChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = splitPoint(text, start, end)
		}

		content := strings.TrimSpace(text[start:end])
		if content != "" {
			chunks = append(chunks, PositionedChunk{
				Index:      index,
				Content:    content,
				CharStart:  start,
				CharEnd:    end,
				PageNumber: attributePage(markers, start, end),
			})
			index++
		}

		if end >= len(text) {
			break
		}

		next := end - overlapChars
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// splitPoint finds the best boundary at or before the hard limit:
// a blank line, then a sentence end, then a word break. Boundaries in
// the first half of the window are ignored so chunks stay near target
// size.
func splitPoint(text string, start, limit int) int {
	window := text[start:limit]
	floor := len(window) / 2

	if i := strings.LastIndex(window, "\n\n"); i > floor {
		return start + i + 2
	}

	best := -1
	for _, sep := range []string{". ", ".\n", "! ", "? "} {
		if i := strings.LastIndex(window, sep); i > floor && i+len(sep) > best {
			best = i + len(sep)
		}
	}
	if best > 0 {
		return start + best
	}

	if i := strings.LastIndexByte(window, ' '); i > floor {
		return start + i + 1
	}

	return limit
}

type pageMarker struct {
	offset int // byte offset of the marker in the text
	page   int
}

func findPageMarkers(text string) []pageMarker {
	locs := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	markers := make([]pageMarker, 0, len(locs))
	for _, loc := range locs {
		page, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		markers = append(markers, pageMarker{offset: loc[0], page: page})
	}
	return markers
}

// attributePage picks the page for a chunk span: the last marker that
// begins inside [start, end), or failing that the last marker before
// start. Text before any marker gets page 1.
func attributePage(markers []pageMarker, start, end int) int {
	page := 1
	found := false
	for _, m := range markers {
		if m.offset >= start && m.offset < end {
			page = m.page
			found = true
		}
	}
	if found {
		return page
	}
	for _, m := range markers {
		if m.offset < start {
			page = m.page
		}
	}
	return page
}

// EstimateTokens approximates token count at 4 characters per token.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// ChunkMetadataFor converts a positioned chunk into its stored form.
func ChunkMetadataFor(ch PositionedChunk) models.ChunkMetadata {
	return models.ChunkMetadata{
		PageNumber: ch.PageNumber,
		CharStart:  ch.CharStart,
		CharEnd:    ch.CharEnd,
	}
}
