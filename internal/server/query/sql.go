package query

import "strings"

// Table holds every WBO of a store; the collection is a column, never part
// of the query text.
const Table = "wbo"

// Select builds a parameterized SELECT of columns for the collection.
func (s *Spec) Select(collection, columns string) (string, []any) {
	where, args := s.where(collection)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columns)
	b.WriteString(" FROM " + Table + " WHERE ")
	b.WriteString(where)
	b.WriteString(s.orderBy())

	page, pageArgs := s.page()
	b.WriteString(page)

	return b.String(), append(args, pageArgs...)
}

// Delete builds a DELETE of every record the query selects, honouring its
// order and paging.
func (s *Spec) Delete(collection string) (string, []any) {
	sub, args := s.Select(collection, "id")
	q := "DELETE FROM " + Table + " WHERE collection = ? AND id IN (" + sub + ")"
	return q, append([]any{collection}, args...)
}

func (s *Spec) where(collection string) (string, []any) {
	preds := []string{"collection = ?"}
	args := []any{collection}

	if s.IDs != nil {
		if len(s.IDs) == 0 {
			preds = append(preds, "0 = 1")
		} else {
			preds = append(preds, "id IN ("+placeholders(len(s.IDs))+")")
			for _, id := range s.IDs {
				args = append(args, id)
			}
		}
	}
	if s.Older != nil {
		preds = append(preds, "modified < ?")
		args = append(args, *s.Older)
	}
	if s.Newer != nil {
		preds = append(preds, "modified > ?")
		args = append(args, *s.Newer)
	}
	if s.IndexAbove != nil {
		preds = append(preds, "sortindex > ?")
		args = append(args, *s.IndexAbove)
	}
	if s.IndexBelow != nil {
		preds = append(preds, "sortindex < ?")
		args = append(args, *s.IndexBelow)
	}
	if s.ParentID != nil {
		preds = append(preds, "parentid = ?")
		args = append(args, *s.ParentID)
	}
	if s.PredecessorID != nil {
		preds = append(preds, "predecessorid = ?")
		args = append(args, *s.PredecessorID)
	}

	return strings.Join(preds, " AND "), args
}

func (s *Spec) orderBy() string {
	switch s.Sort {
	case SortIndex:
		return " ORDER BY sortindex DESC"
	case SortOldest:
		return " ORDER BY modified ASC"
	case SortNewest:
		return " ORDER BY modified DESC"
	default:
		return ""
	}
}

// page renders LIMIT/OFFSET. An offset alone means "skip n, return the rest".
func (s *Spec) page() (string, []any) {
	switch {
	case s.Limit != nil && s.Offset != nil:
		return " LIMIT ? OFFSET ?", []any{*s.Limit, *s.Offset}
	case s.Limit != nil:
		return " LIMIT ?", []any{*s.Limit}
	case s.Offset != nil:
		return " LIMIT -1 OFFSET ?", []any{*s.Offset}
	default:
		return "", nil
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
