package knowledge

import (
	"encoding/json"
	"os"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
)

// loadComments reads a document's comment file, returning an empty one if
// it does not exist yet.
func loadComments(path string) (*CommentFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &CommentFile{NextCommentID: 1}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIoError, err, "read comments %s", path)
	}
	var cf CommentFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, apperr.Wrap(apperr.KindParseError, err, "parse comments %s", path)
	}
	if cf.NextCommentID == 0 {
		cf.NextCommentID = 1
	}
	return &cf, nil
}

func saveComments(path string, cf *CommentFile) error {
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindIoError, err, "marshal comments")
	}
	return writeFileAtomic(path, data)
}

// AddComment appends a comment (never overwrites or removes existing ones)
// and persists the file, allocating the comment's ID from the file's own
// counter.
func (s *Store) AddComment(docID, machineID string, c Comment) (Comment, error) {
	path := CommentsPath(docID, machineID)
	s.commentsMu.Lock()
	defer s.commentsMu.Unlock()

	cf, err := loadComments(path)
	if err != nil {
		return Comment{}, err
	}
	c.ID = cf.NextCommentID
	c.DocumentID = docID
	if c.State == "" {
		c.State = CommentNotAddressed
	}
	cf.NextCommentID++
	cf.Comments = append(cf.Comments, c)
	if err := saveComments(path, cf); err != nil {
		return Comment{}, err
	}
	return c, nil
}

// ListComments returns all comments for a document (local or remote).
func (s *Store) ListComments(docID, machineID string) ([]Comment, error) {
	path := CommentsPath(docID, machineID)
	s.commentsMu.Lock()
	defer s.commentsMu.Unlock()
	cf, err := loadComments(path)
	if err != nil {
		return nil, err
	}
	return cf.Comments, nil
}

// ResolveComment transitions a comment to "addressed". Comments are never
// deleted and never regress from addressed back to not_addressed.
func (s *Store) ResolveComment(docID, machineID string, commentID int) error {
	path := CommentsPath(docID, machineID)
	s.commentsMu.Lock()
	defer s.commentsMu.Unlock()

	cf, err := loadComments(path)
	if err != nil {
		return err
	}
	found := false
	for i := range cf.Comments {
		if cf.Comments[i].ID == commentID {
			cf.Comments[i].State = CommentAddressed
			cf.Comments[i].AddressedAt = time.Now().UTC()
			found = true
			break
		}
	}
	if !found {
		return apperr.New(apperr.KindNotFound, "comment %d on %s", commentID, docID)
	}
	return saveComments(path, cf)
}
