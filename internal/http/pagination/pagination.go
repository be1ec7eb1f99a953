// Package pagination builds next/previous page links for page-number listings.
package pagination

import (
	"fmt"
	"net/url"
	"strings"
)

type PageRef struct {
	Page     int
	PageSize int
}

// Links returns the neighbouring pages of a listing. There is a previous page
// for every page after the first. A next page is assumed whenever the result
// filled the page: with no total count, a listing that ends exactly on a page
// boundary yields a next page that turns out empty.
func Links(page, pageSize, resultCount int) (prev, next *PageRef) {
	if page > 1 {
		prev = &PageRef{Page: page - 1, PageSize: pageSize}
	}
	if resultCount == pageSize {
		next = &PageRef{Page: page + 1, PageSize: pageSize}
	}
	return prev, next
}

// LinkBuilder renders page references as absolute URLs against the externally
// visible address of the service.
type LinkBuilder struct {
	externalUrl string
}

func NewLinkBuilder(externalUrl string) LinkBuilder {
	return LinkBuilder{strings.TrimRight(externalUrl, "/")}
}

// External returns path as an absolute URL without a trailing slash.
func (lb LinkBuilder) External(path string) string {
	return lb.externalUrl + strings.TrimRight(path, "/")
}

// Page renders ref for path, carrying over query parameters other than page
// and pageSize. It returns "" for a nil ref.
func (lb LinkBuilder) Page(path string, ref *PageRef, query url.Values) string {
	if ref == nil {
		return ""
	}
	link := fmt.Sprintf("%s?page=%d&pageSize=%d", lb.External(path), ref.Page, ref.PageSize)
	rest := url.Values{}
	for key, values := range query {
		if key != "page" && key != "pageSize" {
			rest[key] = values
		}
	}
	if len(rest) > 0 {
		link += "&" + rest.Encode()
	}
	return link
}
