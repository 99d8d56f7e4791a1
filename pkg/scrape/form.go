package scrape

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/webspider/pkg/spider"
)

// ErrFormNotFound means no form in the body matched the builder's qualifiers.
var ErrFormNotFound = errors.New("form not found")

// Field is one submitted form value.
type Field struct {
	Name  string
	Value string
}

// FormBuilder locates a form in a page and collects the values to submit.
type FormBuilder struct {
	id     string
	name   string
	body   *goquery.Document
	fields []Field
}

// NewForm starts a FormBuilder.
func NewForm() *FormBuilder {
	return &FormBuilder{}
}

// ID restricts the match to the form with this id.
func (b *FormBuilder) ID(id string) *FormBuilder {
	b.id = id
	return b
}

// Name restricts the match to the form with this name.
func (b *FormBuilder) Name(name string) *FormBuilder {
	b.name = name
	return b
}

// Body sets the document holding the form. Required.
func (b *FormBuilder) Body(doc *goquery.Document) *FormBuilder {
	b.body = doc
	return b
}

// Fields appends values that override the ones found in the form.
func (b *FormBuilder) Fields(fields ...Field) *FormBuilder {
	b.fields = append(b.fields, fields...)
	return b
}

// AddField appends a single override.
func (b *FormBuilder) AddField(name, value string) *FormBuilder {
	return b.Fields(Field{Name: name, Value: value})
}

func (b *FormBuilder) selector() string {
	sel := "form"
	if b.id != "" {
		sel += "[id=" + strconv.Quote(b.id) + "]"
	}
	if b.name != "" {
		sel += "[name=" + strconv.Quote(b.name) + "]"
	}
	return sel
}

// Build finds the first matching form and merges its inputs with the
// configured fields. Inputs are keyed by name, falling back to id; inputs with
// neither are skipped.
func (b *FormBuilder) Build() (*Form, error) {
	if b.body == nil {
		return nil, errors.New("form body is required")
	}
	form := b.body.Find(b.selector()).First()
	if form.Length() == 0 {
		return nil, ErrFormNotFound
	}

	values := url.Values{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		key, ok := input.Attr("name")
		if !ok || key == "" {
			key, ok = input.Attr("id")
		}
		if !ok || key == "" {
			return
		}
		values.Set(key, input.AttrOr("value", ""))
	})
	for _, f := range b.fields {
		values.Set(f.Name, f.Value)
	}

	return &Form{action: form.AttrOr("action", ""), values: values}, nil
}

// Form is a located form ready to be submitted.
type Form struct {
	action string
	values url.Values
}

// Action returns the raw action attribute.
func (f *Form) Action() string {
	return f.action
}

// Values returns a copy of the values that will be submitted.
func (f *Form) Values() url.Values {
	out := make(url.Values, len(f.values))
	for k, v := range f.values {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Request builds a url-encoded POST of the form to its action resolved
// against base.
func (f *Form) Request(base *url.URL) (*spider.Request, error) {
	if base == nil {
		return nil, errors.New("form base url is required")
	}
	ref, err := url.Parse(f.action)
	if err != nil {
		return nil, fmt.Errorf("parse form action %q: %w", f.action, err)
	}
	req, err := spider.NewRequest(http.MethodPost, base.ResolveReference(ref).String(), []byte(f.values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build form request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}
