// Package scrape holds goquery helpers for handlers: a document from a
// response, strict single-element selection and form submission.
package scrape

import (
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/webspider/pkg/spider"
)

var (
	// ErrNoElement means the selection is empty.
	ErrNoElement = errors.New("selection does not contain any elements")
	// ErrNonUniqueElement means the selection holds more than one element.
	ErrNonUniqueElement = errors.New("selection does not have a unique element")
)

// MissingAttributeError reports a unique element lacking the wanted attribute.
type MissingAttributeError struct {
	Attr string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("selection does not contain an element with the attribute %q", e.Attr)
}

// Document parses the response body as HTML. Relative links in the document
// resolve against the response URL.
func Document(resp *spider.Response) (*goquery.Document, error) {
	if resp == nil {
		return nil, errors.New("response is required")
	}
	doc, err := goquery.NewDocumentFromReader(resp.Reader())
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc.Url = resp.URL
	if doc.Url == nil && resp.Request != nil {
		doc.Url = resp.Request.URL
	}
	return doc, nil
}

// UniqueElement returns sel when it holds exactly one element.
func UniqueElement(sel *goquery.Selection) (*goquery.Selection, error) {
	switch n := sel.Length(); {
	case n == 0:
		return nil, ErrNoElement
	case n > 1:
		return nil, ErrNonUniqueElement
	}
	return sel, nil
}

// ParseAttr returns attr of the single element in sel.
func ParseAttr(sel *goquery.Selection, attr string) (string, error) {
	el, err := UniqueElement(sel)
	if err != nil {
		return "", err
	}
	v, ok := el.Attr(attr)
	if !ok {
		return "", &MissingAttributeError{Attr: attr}
	}
	return v, nil
}
