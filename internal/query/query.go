// Package query derives the visible link sequence from the mirror and the
// active filters. Everything here is pure.
package query

import (
	"sort"
	"strings"

	"github.com/MrSnakeDoc/linkpocket/internal/model"
)

// Filter is the category-level filter: all, favorite, search or a category.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterFavorite Filter = "favorite"
	FilterSearch   Filter = "search"
)

// ParseFilter accepts all, favorite, search or a category tag.
func ParseFilter(s string) (Filter, bool) {
	switch Filter(s) {
	case FilterAll, FilterFavorite, FilterSearch:
		return Filter(s), true
	}
	if c, ok := model.ParseCategory(s); ok {
		return Filter(c), true
	}
	return "", false
}

// Folder filter values other than a folder key.
const (
	FolderAll          = "all"
	FolderUnclassified = "unclassified"
)

// Selection is the transient filter state of a session.
type Selection struct {
	Filter     Filter `json:"filter"`
	Folder     string `json:"folder"`
	Ascending  bool   `json:"ascending"`
	SearchText string `json:"searchText"`
}

// DefaultSelection shows everything, newest first.
func DefaultSelection() Selection {
	return Selection{Filter: FilterAll, Folder: FolderAll}
}

// SpecificFolder returns the folder key when a single folder is selected.
func (s Selection) SpecificFolder() (string, bool) {
	if s.Folder == "" || s.Folder == FolderAll || s.Folder == FolderUnclassified {
		return "", false
	}
	return s.Folder, true
}

// EmptyReason explains an empty result.
type EmptyReason string

const (
	NotEmpty        EmptyReason = ""
	NoData          EmptyReason = "no_data"
	NoSearchResults EmptyReason = "no_search_results"
	EmptyFolder     EmptyReason = "empty_folder"
)

// Result is the visible sequence plus, when it is empty, why.
type Result struct {
	Links []model.Link `json:"links"`
	Empty EmptyReason  `json:"empty,omitempty"`
}

// Apply sorts links by timestamp, then applies the folder filter, then
// exactly one of search, favorite or category.
func Apply(links []model.Link, sel Selection) Result {
	out := Sorted(links, sel.Ascending)

	out = filter(out, folderPredicate(sel.Folder))

	switch {
	case sel.Filter == FilterSearch:
		if needle := strings.ToLower(strings.TrimSpace(sel.SearchText)); needle != "" {
			out = filter(out, func(l model.Link) bool {
				return strings.Contains(strings.ToLower(l.Title), needle) ||
					strings.Contains(strings.ToLower(l.Desc), needle)
			})
		}
	case sel.Filter == FilterFavorite:
		out = filter(out, func(l model.Link) bool { return l.IsFavorite })
	case sel.Filter != FilterAll && sel.Filter != "":
		cat := model.Category(sel.Filter)
		out = filter(out, func(l model.Link) bool { return l.Category == cat })
	}

	res := Result{Links: out}
	if len(out) == 0 {
		res.Empty = emptyReason(sel)
	}
	return res
}

// Sorted returns links ordered by timestamp, newest first unless ascending.
// Equal timestamps are ordered by key so the result is deterministic.
func Sorted(links []model.Link, ascending bool) []model.Link {
	out := append([]model.Link(nil), links...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp != b.Timestamp {
			if ascending {
				return a.Timestamp < b.Timestamp
			}
			return a.Timestamp > b.Timestamp
		}
		return a.Key < b.Key
	})
	return out
}

func folderPredicate(folder string) func(model.Link) bool {
	switch folder {
	case "", FolderAll:
		return nil
	case FolderUnclassified:
		return model.Link.Unclassified
	default:
		return func(l model.Link) bool { return l.InFolder(folder) }
	}
}

func filter(links []model.Link, keep func(model.Link) bool) []model.Link {
	if keep == nil {
		return links
	}
	out := links[:0:0]
	for _, l := range links {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func emptyReason(sel Selection) EmptyReason {
	switch {
	case sel.Filter == FilterSearch:
		return NoSearchResults
	case sel.Folder != "" && sel.Folder != FolderAll:
		return EmptyFolder
	default:
		return NoData
	}
}

// Counts feeds the sidebar.
type Counts struct {
	Total        int            `json:"total"`
	Unclassified int            `json:"unclassified"`
	Folders      map[string]int `json:"folders"`
}

// Count tallies links per folder. Links pointing at a folder that no longer
// exists are still counted under that key.
func Count(links []model.Link) Counts {
	c := Counts{Total: len(links), Folders: make(map[string]int)}
	for _, l := range links {
		if l.Unclassified() {
			c.Unclassified++
			continue
		}
		c.Folders[*l.FolderID]++
	}
	return c
}
