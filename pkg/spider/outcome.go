package spider

type outcomeKind uint8

const (
	outcomeItem outcomeKind = iota + 1
	outcomeFollow
)

// Outcome is one value produced by a handler: either an item or a follow-up
// callback. The zero Outcome is neither and fails routing.
type Outcome[I, C any] struct {
	kind     outcomeKind
	item     I
	callback *Callback[I, C]
}

// NewItem wraps a finished item.
func NewItem[I, C any](item I) Outcome[I, C] {
	return Outcome[I, C]{kind: outcomeItem, item: item}
}

// NewFollow wraps a follow-up callback. A nil callback still makes a follow-up
// outcome; routing rejects it with ErrInvalidCallback.
func NewFollow[I, C any](cb *Callback[I, C]) Outcome[I, C] {
	return Outcome[I, C]{kind: outcomeFollow, callback: cb}
}

// IsCallback reports whether the outcome is a follow-up.
func (o Outcome[I, C]) IsCallback() bool {
	return o.kind == outcomeFollow
}

// Item returns the item and true, or the zero value and false for anything else.
func (o Outcome[I, C]) Item() (I, bool) {
	if o.kind != outcomeItem {
		var zero I
		return zero, false
	}
	return o.item, true
}

// Callback returns the follow-up callback and true for a follow-up outcome.
func (o Outcome[I, C]) Callback() (*Callback[I, C], bool) {
	return o.callback, o.kind == outcomeFollow
}
