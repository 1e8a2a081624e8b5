package lanes

// NoTarget marks that no target subject was placed.
const NoTarget = -1

// Selection is the set of pages handed back for one kind.
type Selection struct {
	Pages []Page
	// Page is the 1-based number of the selected page, or 1 when every page
	// is returned. In legacy mode a target hit reports the raw page index.
	Page  int
	Count int
	Total int
}

// Select picks which pages to return. explicitPage (1-based, 0 for none)
// takes priority over targetIndex (0-based, NoTarget for none); with
// neither, every page is returned.
func Select(pages []Page, explicitPage, targetIndex int, legacy bool) Selection {
	total := len(pages)
	switch {
	case explicitPage > 0:
		sel := Selection{Page: explicitPage, Total: total, Pages: []Page{}}
		if explicitPage <= total {
			sel.Pages = []Page{pages[explicitPage-1]}
		}
		sel.Count = len(sel.Pages)
		return sel
	case targetIndex >= 0 && targetIndex < total:
		page := targetIndex + 1
		if legacy {
			page = targetIndex
		}
		return Selection{
			Pages: []Page{pages[targetIndex]},
			Page:  page,
			Count: 1,
			Total: total,
		}
	default:
		all := pages
		if all == nil {
			all = []Page{}
		}
		return Selection{Pages: all, Page: 1, Count: total, Total: total}
	}
}
