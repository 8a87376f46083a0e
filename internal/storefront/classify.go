package storefront

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Capabilities is what a search-result container was observed to contain.
type Capabilities struct {
	HasLink  bool
	HasTitle bool
	// HasMarker is set only when the container's HTML could not be
	// inspected and the search-result marker attribute was read instead.
	HasMarker bool
	Title     string
}

// IsRealProduct reports whether a result looks like a product listing: it
// links somewhere and has a title. An uninspectable result counts when it
// carries the search-result marker.
func IsRealProduct(c Capabilities) bool {
	return (c.HasLink && c.HasTitle) || c.HasMarker
}

// ParseCapabilities inspects the outer HTML of one result container. The
// marker attribute is ignored here; every container the default results
// locator matches carries it.
func ParseCapabilities(outerHTML string) (Capabilities, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return Capabilities{}, fmt.Errorf("parse result html: %w", err)
	}
	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		return Capabilities{}, fmt.Errorf("result html has no element")
	}

	titles := root.Find(titleProbe)
	c := Capabilities{
		HasLink:  root.Is(anchorProbe) || root.Find(anchorProbe).Length() > 0,
		HasTitle: titles.Length() > 0,
	}
	if c.HasTitle {
		c.Title = strings.Join(strings.Fields(titles.First().Text()), " ")
	}
	if c.Title == "" {
		c.Title, _ = root.Attr("aria-label")
	}
	return c, nil
}

// ChooseThird picks the third product from the inspected candidates and
// returns its position in caps. Real products are preferred; when fewer than
// three qualify the unfiltered list is used. filtered reports which list the
// pick came from.
func ChooseThird(caps []Capabilities) (index int, filtered bool, err error) {
	if len(caps) < 3 {
		return -1, false, fmt.Errorf("only %d results, need at least 3", len(caps))
	}
	var products []int
	for i, c := range caps {
		if IsRealProduct(c) {
			products = append(products, i)
		}
	}
	if len(products) >= 3 {
		return products[2], true, nil
	}
	return 2, false, nil
}
