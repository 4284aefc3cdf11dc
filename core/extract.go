package core

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/webaudit/webaudit/utils"
)

// extractContent parses an HTML document and returns its outgoing links in
// normalized form plus its forms. Links that normalize to nothing fetchable
// (fragments, javascript:, mailto: and friends) are dropped.
func extractContent(htmlContent string, pageURL *url.URL) ([]string, []Form) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, nil
	}

	var links []string
	var forms []Form

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a", "area":
				if href := attrValue(n, "href"); href != "" {
					if norm := utils.NormalizeURL(utils.ResolveURL(href, pageURL)); norm != "" {
						links = append(links, norm)
					}
				}
			case "form":
				forms = append(forms, extractForm(n, pageURL))
			case "iframe", "frame":
				if src := attrValue(n, "src"); src != "" {
					if norm := utils.NormalizeURL(utils.ResolveURL(src, pageURL)); norm != "" {
						links = append(links, norm)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return links, forms
}

// extractForm builds a Form from a form element, resolving its action
// against the page URL. An empty action submits back to the page itself.
func extractForm(n *html.Node, pageURL *url.URL) Form {
	form := Form{
		Action: attrValue(n, "action"),
		Method: strings.ToUpper(attrValue(n, "method")),
	}
	if form.Method == "" {
		form.Method = "GET"
	}
	if form.Action == "" {
		form.Action = pageURL.String()
	} else {
		form.Action = utils.ResolveURL(form.Action, pageURL)
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "input", "select", "textarea":
				field := FormField{
					Name: attrValue(n, "name"),
					Type: attrValue(n, "type"),
				}
				if field.Type == "" {
					field.Type = "text"
				}
				if field.Name != "" {
					form.Fields = append(form.Fields, field)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child)
	}

	return form
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}
