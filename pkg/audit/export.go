package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Querier reads audit entries, newest first
type Querier interface {
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
}

// ExportPageSize is the page size Export reads with
const ExportPageSize = 500

// Export writes every entry matching filter to w as JSON lines, newest
// first, and returns the number written. It pages by id so entries recorded
// during the export do not shift the pages. Limit, Offset and BeforeID on
// filter are ignored.
func Export(ctx context.Context, q Querier, filter Filter, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	filter.Limit = ExportPageSize
	filter.Offset = 0
	filter.BeforeID = 0

	written := 0
	for {
		page, err := q.Query(ctx, filter)
		if err != nil {
			return written, err
		}
		for _, e := range page {
			if err := enc.Encode(e); err != nil {
				return written, fmt.Errorf("failed to write audit entry %d: %w", e.ID, err)
			}
			written++
		}
		if len(page) < ExportPageSize {
			return written, nil
		}
		filter.BeforeID = page[len(page)-1].ID
	}
}
