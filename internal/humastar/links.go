package humastar

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// Action is a state-dependent hypermedia action link, rendered as
//
//	<url>; rel="activate"; method="PUT"; title="Show rain view"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
}

// LinkHeader formats the action as an RFC 8288 Link header value.
func (a Action) LinkHeader() string {
	h := fmt.Sprintf(`<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		h += fmt.Sprintf(`; method="%s"`, a.Method)
	}
	if a.Title != "" {
		h += fmt.Sprintf(`; title="%s"`, a.Title)
	}
	return h
}

// Actor is implemented by response bodies that carry actions.
type Actor interface {
	Actions() []Action
}

// Pager is implemented by response bodies that carry pagination metadata.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageBody is a paginated response envelope.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Page slices items by offset and limit.
func Page[T any](items []T, offset, limit int) PageBody[T] {
	total := len(items)
	lo := min(max(offset, 0), total)
	hi := min(lo+max(limit, 0), total)
	return PageBody[T]{Total: total, Offset: offset, Limit: limit, Data: items[lo:hi]}
}

// PaginationLinks returns first/prev/next/last links.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	if p.Limit <= 0 {
		return nil
	}
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="%s"`, basePath, offset, p.Limit, rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	last := 0
	if p.Total > 0 {
		last = ((p.Total - 1) / p.Limit) * p.Limit
	}
	return append(links, link(last, "last"))
}

// Linker derives Link headers from the registered operations: items link to
// their collection, collections to their item template and the entry point
// to every collection.
type Linker struct {
	entry string
	mu    sync.RWMutex
	links map[string][]string
}

// NewLinker creates a linker whose entry point is entry (e.g. "/health").
func NewLinker(entry string) *Linker {
	return &Linker{entry: entry, links: map[string][]string{}}
}

// Build walks the OpenAPI paths. Call after every route is registered.
// Operations tagged skipTag (streams) are left out.
func (l *Linker) Build(api huma.API, skipTag string) {
	paths := api.OpenAPI().Paths

	var collections, items []string
	for p, pi := range paths {
		if hasTag(pi, skipTag) {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	sort.Strings(collections)
	sort.Strings(items)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.links = map[string][]string{}

	for _, item := range items {
		parent := path.Dir(item)
		if strings.Contains(parent, "{") {
			parent = path.Dir(parent)
		}
		if _, ok := paths[parent]; ok {
			l.add(item, parent, "collection")
			l.add(parent, item, "item")
		}
	}
	for _, coll := range collections {
		if coll == l.entry {
			continue
		}
		l.add(coll, l.entry, "up")
		l.add(l.entry, coll, lastSegment(coll))
	}
	l.add(l.entry, "/openapi.json", "service-desc")
	l.add(l.entry, "/docs", "service-doc")
}

// Links returns the Link header values for an operation path.
func (l *Linker) Links(opPath string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.links[opPath]...)
}

// Transformer returns a Huma Transformer that writes the derived links, a
// self link for item paths, pagination links and body actions.
func (l *Linker) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}
		for _, link := range l.Links(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func (l *Linker) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	for _, existing := range l.links[from] {
		if existing == val {
			return
		}
	}
	l.links[from] = append(l.links[from], val)
}

func hasTag(pi *huma.PathItem, tag string) bool {
	if tag == "" {
		return false
	}
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op == nil {
			continue
		}
		for _, t := range op.Tags {
			if t == tag {
				return true
			}
		}
	}
	return false
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}
