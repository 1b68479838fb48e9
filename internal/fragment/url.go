package fragment

import (
	"net/url"
	"strconv"
	"strings"
)

// DraftClass marks a batch container whose comments are all drafts. Draft-only
// batches are fetched without context expansion.
const DraftClass = "draft"

// URLOptions controls how a batch fetch URL is built.
type URLOptions struct {
	// BasePath ends with a slash, e.g. "/r/42/_fragments/diff-comments/".
	BasePath       string
	LinesOfContext []int
	AllowExpansion bool
	TemplateSerial string
}

// BuildURL returns the fetch URL for ids in the given order.
func BuildURL(opts URLOptions, ids []uint32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}

	base := opts.BasePath
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	q := url.Values{}
	if len(opts.LinesOfContext) > 0 {
		lines := make([]string, len(opts.LinesOfContext))
		for i, n := range opts.LinesOfContext {
			lines[i] = strconv.Itoa(n)
		}
		q.Set("lines_of_context", strings.Join(lines, ","))
	}
	if opts.AllowExpansion {
		q.Set("allow_expansion", "1")
	}
	if opts.TemplateSerial != "" {
		q.Set("_", opts.TemplateSerial)
	}

	u := base + strings.Join(parts, ",") + "/"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// ParseIDs parses a comma separated comment id list such as "1,2,3".
func ParseIDs(s string) ([]uint32, error) {
	var ids []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint32(n))
	}
	return ids, nil
}
