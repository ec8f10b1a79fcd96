package section

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/c360studio/reportengine/locker"
	"github.com/c360studio/reportengine/toolkit"
)

const excerptRunes = 280

// DocumentsRenderer renders section 5.
type DocumentsRenderer struct{}

// ID returns the section id.
func (DocumentsRenderer) ID() ID { return IDDocuments }

// Render inventories every document in the locker and quotes the
// supporting documents classified to this section.
func (DocumentsRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	p := NewPayload(IDDocuments)
	p.Provenance.Toolkit = []string{toolkit.ToolMetadata}

	facts := map[string]toolkit.DocumentFacts{}
	if md := in.Toolkit.Metadata(); md != nil {
		for _, f := range md.Documents {
			facts[f.ItemID] = f
		}
	}

	docs := byKind(in.Evidence, locker.KindDocument)
	documents := []map[string]any{}
	var rows [][]string
	var quoted strings.Builder
	withoutText := 0
	for _, item := range docs {
		f := facts[item.ID]
		text := in.Texts[item.ID]
		if strings.TrimSpace(text) == "" {
			withoutText++
		}
		documents = append(documents, map[string]any{
			"item_id":  item.ID,
			"exhibit":  item.Exhibit,
			"filename": item.Filename,
			"title":    item.Title,
			"section":  item.Section,
			"method":   item.ExtractMethod,
			"words":    f.Words,
			"dates":    nonNil(f.Dates),
			"status":   string(item.Status),
		})
		rows = append(rows, []string{
			item.Exhibit, item.Filename, sectionLabel(item.Section),
			orDefault(item.ExtractMethod, "-"), fmt.Sprint(f.Words),
		})
		if item.Section == string(IDDocuments) && text != "" {
			fmt.Fprintf(&quoted, "**%s, %s**", item.Exhibit, orDefault(item.Title, item.Filename))
			if len(f.Dates) > 0 {
				fmt.Fprintf(&quoted, " (dates referenced: %s)", joinList(f.Dates))
			}
			fmt.Fprintf(&quoted, "\n\n> %s\n\n", excerpt(text, excerptRunes))
		}
	}
	p.Provenance.EvidenceIDs = itemIDs(docs)

	p.Data = map[string]any{
		"documents":      documents,
		"document_count": len(documents),
		"without_text":   withoutText,
	}
	if md := in.Toolkit.Metadata(); md != nil && md.EarliestDate != "" {
		p.Data["date_range"] = map[string]any{"earliest": md.EarliestDate, "latest": md.LatestDate}
	}
	if withoutText > 0 {
		p.Flag("documents-without-text", SeverityWarning, "%d document(s) have no extracted text", withoutText)
	}

	var sb strings.Builder
	if len(documents) == 0 {
		sb.WriteString("No supporting documents were submitted for review.\n")
		return finish(p, in, sb.String())
	}
	fmt.Fprintf(&sb, "%d document(s) were received and reviewed.", len(documents))
	if dr, ok := p.Data["date_range"].(map[string]any); ok {
		fmt.Fprintf(&sb, " The material references dates from %s to %s.", dr["earliest"], dr["latest"])
	}
	sb.WriteString("\n\n")
	sb.WriteString(mdTable([]string{"Exhibit", "File", "Section", "Extraction", "Words"}, rows))
	if quoted.Len() > 0 {
		sb.WriteString("\n### Supporting Documents\n\n")
		sb.WriteString(quoted.String())
	}
	return finish(p, in, sb.String())
}

// MediaRenderer renders section 8.
type MediaRenderer struct{}

// ID returns the section id.
func (MediaRenderer) ID() ID { return IDMedia }

// Render indexes every photo and video in the locker.
func (MediaRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	p := NewPayload(IDMedia)

	items := byKind(in.Evidence, locker.KindMedia)
	p.Provenance.EvidenceIDs = itemIDs(items)

	media := []map[string]any{}
	var rows [][]string
	var total int64
	for _, item := range items {
		total += item.Size
		caption := strings.TrimSpace(in.Texts[item.ID])
		media = append(media, map[string]any{
			"item_id":   item.ID,
			"exhibit":   item.Exhibit,
			"filename":  item.Filename,
			"mime_type": item.MimeType,
			"size":      item.Size,
			"sha256":    item.SHA256,
			"received":  item.AddedAt.UTC().Format("2006-01-02T15:04:05Z"),
			"ocr_text":  caption,
		})
		rows = append(rows, []string{
			item.Exhibit, item.Filename, item.MimeType,
			humanize.Bytes(uint64(item.Size)), item.SHA256[:min(12, len(item.SHA256))],
		})
	}
	p.Data = map[string]any{
		"media":       media,
		"media_count": len(media),
		"total_bytes": total,
	}

	var sb strings.Builder
	if len(media) == 0 {
		sb.WriteString("No photographs or video were submitted with this case.\n")
		return finish(p, in, sb.String())
	}
	fmt.Fprintf(&sb, "%d media file(s) totalling %s are retained in the evidence locker.\n\n",
		len(media), humanize.Bytes(uint64(total)))
	sb.WriteString(mdTable([]string{"Exhibit", "File", "Type", "Size", "SHA-256"}, rows))
	return finish(p, in, sb.String())
}

// byKind returns items of kind ordered by exhibit label.
func byKind(items []*locker.Item, kind locker.Kind) []*locker.Item {
	var out []*locker.Item
	for _, item := range items {
		if item.Kind == kind && item.Status != locker.StatusFailed {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exhibit < out[j].Exhibit })
	return out
}

func sectionLabel(s string) string {
	if s == "" {
		return "-"
	}
	if id, err := ParseID(s); err == nil {
		return id.Label()
	}
	return s
}
