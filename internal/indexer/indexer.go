// Package indexer extracts vector rows from knowledge documents and session
// transcripts and writes them to the vector store, per spec §4.4's "Index
// extraction" rule.
package indexer

import (
	"fmt"

	"github.com/langmartai/lmassist/internal/embedding"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/vectorstore"
)

// BuildKnowledgeVectors emits the vector rows a document should produce: one
// title vector ("{title} [{type}]", contentType=knowledge_title) and one
// part vector per part ("{partId}: {title}: {summary}",
// contentType=knowledge_part).
func BuildKnowledgeVectors(doc *knowledge.Document) []vectorstore.AddItem {
	items := make([]vectorstore.AddItem, 0, len(doc.Parts)+1)

	items = append(items, vectorstore.AddItem{
		RowType:        "knowledge",
		KnowledgeID:    doc.ID,
		ProjectPath:    doc.Project,
		MilestoneIndex: vectorstore.NoMilestoneIndex,
		Phase:          vectorstore.NoPhase,
		ContentType:    "knowledge_title",
		Text:           fmt.Sprintf("%s [%s]", doc.Title, doc.Type),
		Timestamp:      timestampOf(doc),
	})

	for _, p := range doc.Parts {
		items = append(items, vectorstore.AddItem{
			RowType:        "knowledge",
			KnowledgeID:    doc.ID,
			PartID:         p.PartID,
			ProjectPath:    doc.Project,
			MilestoneIndex: vectorstore.NoMilestoneIndex,
			Phase:          vectorstore.NoPhase,
			ContentType:    "knowledge_part",
			Text:           fmt.Sprintf("%s: %s: %s", p.PartID, p.Title, p.Summary),
			Timestamp:      timestampOf(doc),
		})
	}
	return items
}

func timestampOf(doc *knowledge.Document) string {
	if doc.UpdatedAt.IsZero() {
		return ""
	}
	return doc.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
}

// IndexDocument embeds and writes a document's title and part vectors.
func IndexDocument(db *vectorstore.DB, provider embedding.Provider, doc *knowledge.Document) error {
	return db.AddVectors(provider, BuildKnowledgeVectors(doc))
}

// ReindexDocument removes a document's existing rows before re-adding them,
// used when content changed in a way that must not leave stale part rows
// behind (e.g. the part count shrank).
func ReindexDocument(db *vectorstore.DB, provider embedding.Provider, doc *knowledge.Document) error {
	if err := db.DeleteKnowledge(doc.ID); err != nil {
		return err
	}
	return IndexDocument(db, provider, doc)
}
