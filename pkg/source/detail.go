package source

import (
	"bytes"
	"fmt"
	"regexp"

	"golang.org/x/net/html"
)

// sellerLinkPatterns are profile link patterns in lookup order
var sellerLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/users/([^/?#]+)`),
	regexp.MustCompile(`/profile/([^/?#]+)`),
}

// SellerFromHTML returns the seller id from the first profile link of a detail page.
// "/users/" links win over "/profile/" links regardless of their position.
func SellerFromHTML(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var hrefs []string
	var walker func(*html.Node)
	walker = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					hrefs = append(hrefs, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c)
		}
	}
	walker(doc)

	for _, re := range sellerLinkPatterns {
		for _, href := range hrefs {
			if m := re.FindStringSubmatch(href); len(m) == 2 {
				return m[1], nil
			}
		}
	}
	return "", nil
}
