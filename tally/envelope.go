package tally

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// The wire format is schema-less tag-per-key XML under a fixed <ENVELOPE>
// root: map keys become upper-cased tags, nested maps recurse, slices repeat
// the parent tag once per element, nil values are omitted, and everything
// else is rendered as text content. Element attributes round-trip through
// the reserved "@attributes" key.
//
// Known quirk, kept for wire compatibility: on decode a tag that occurs once
// comes back as a scalar value, and is only promoted to a []any on its
// second occurrence. Callers that expect lists must normalize through
// asSlice instead of type-asserting.

const attributesKey = "@attributes"
const textKey = "#text"

// EncodeEnvelope renders obj as an <ENVELOPE> document.
func EncodeEnvelope(obj map[string]any) string {
	var b strings.Builder
	b.WriteString(`<ENVELOPE>`)
	encodeChildren(&b, obj)
	b.WriteString(`</ENVELOPE>`)
	return b.String()
}

func encodeChildren(b *strings.Builder, obj map[string]any) {
	for _, key := range orderedKeys(obj) {
		encodeValue(b, strings.ToUpper(key), obj[key])
	}
}

func encodeValue(b *strings.Builder, tag string, value any) {
	switch v := value.(type) {
	case nil:
		// omitted entirely, not emitted as an empty tag
	case map[string]any:
		openTag(b, tag, v)
		encodeChildren(b, withoutAttributes(v))
		closeTag(b, tag)
	case []any:
		for _, item := range v {
			encodeValue(b, tag, item)
		}
	case []map[string]any:
		for _, item := range v {
			encodeValue(b, tag, item)
		}
	default:
		openTag(b, tag, nil)
		writeEscaped(b, fmt.Sprintf("%v", v))
		closeTag(b, tag)
	}
}

func openTag(b *strings.Builder, tag string, obj map[string]any) {
	b.WriteByte('<')
	b.WriteString(tag)
	if attrs := attributesOf(obj); len(attrs) > 0 {
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteByte(' ')
			b.WriteString(name)
			b.WriteString(`="`)
			writeEscaped(b, attrs[name])
			b.WriteString(`"`)
		}
	}
	b.WriteByte('>')
}

func closeTag(b *strings.Builder, tag string) {
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteByte('>')
}

// orderedKeys returns map keys with HEADER forced first (the server reads
// the request type from the header before the body), the rest alphabetical
// so output is deterministic.
func orderedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		if key == attributesKey {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ui, uj := strings.ToUpper(keys[i]), strings.ToUpper(keys[j])
		if (ui == "HEADER") != (uj == "HEADER") {
			return ui == "HEADER"
		}
		return ui < uj
	})
	return keys
}

func withoutAttributes(obj map[string]any) map[string]any {
	if _, ok := obj[attributesKey]; !ok {
		return obj
	}
	out := make(map[string]any, len(obj)-1)
	for key, value := range obj {
		if key != attributesKey {
			out[key] = value
		}
	}
	return out
}

func attributesOf(obj map[string]any) map[string]string {
	if obj == nil {
		return nil
	}
	raw, ok := obj[attributesKey]
	if !ok {
		return nil
	}
	switch attrs := raw.(type) {
	case map[string]string:
		return attrs
	case map[string]any:
		out := make(map[string]string, len(attrs))
		for name, value := range attrs {
			out[name] = fmt.Sprintf("%v", value)
		}
		return out
	}
	return nil
}

func writeEscaped(b *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
}

// DecodeEnvelope parses a wire document into the nested key/value model.
// A document without a root element is a ProtocolError.
func DecodeEnvelope(xmlText string) (map[string]any, error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlText))

	var root *xml.StartElement
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ProtocolError{Reason: err.Error()}
		}
		if start, ok := token.(xml.StartElement); ok {
			root = &start
			break
		}
	}
	if root == nil {
		return nil, &ProtocolError{Reason: "document has no root element"}
	}

	value, err := decodeElement(decoder, *root)
	if err != nil {
		return nil, err
	}
	if obj, ok := value.(map[string]any); ok {
		return obj, nil
	}
	if s, ok := value.(string); ok {
		return map[string]any{textKey: s}, nil
	}
	return map[string]any{}, nil
}

func decodeElement(decoder *xml.Decoder, start xml.StartElement) (any, error) {
	children := map[string]any{}
	var text strings.Builder

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, &ProtocolError{Reason: err.Error()}
		}
		switch t := token.(type) {
		case xml.StartElement:
			child, err := decodeElement(decoder, t)
			if err != nil {
				return nil, err
			}
			addChild(children, t.Name.Local, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			return finishElement(start, children, strings.TrimSpace(text.String())), nil
		}
	}
}

func finishElement(start xml.StartElement, children map[string]any, text string) any {
	attrs := map[string]string{}
	for _, attr := range start.Attr {
		attrs[attr.Name.Local] = attr.Value
	}

	if len(children) == 0 {
		if len(attrs) == 0 {
			return text
		}
		obj := map[string]any{attributesKey: attrs}
		if text != "" {
			obj[textKey] = text
		}
		return obj
	}

	if len(attrs) > 0 {
		children[attributesKey] = attrs
	}
	return children
}

// addChild implements the repeated-sibling rule: the first occurrence is
// stored bare and the second promotes the slot to a slice.
func addChild(parent map[string]any, tag string, value any) {
	existing, ok := parent[tag]
	if !ok {
		parent[tag] = value
		return
	}
	if list, isList := existing.([]any); isList {
		parent[tag] = append(list, value)
		return
	}
	parent[tag] = []any{existing, value}
}

// asSlice normalizes a decoded slot into a list regardless of how many
// times the tag occurred.
func asSlice(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

func asMap(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return nil
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if s, ok := v[textKey].(string); ok {
			return s
		}
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// dig walks nested maps by tag path, returning nil when any hop is missing.
func dig(obj map[string]any, path ...string) any {
	var current any = obj
	for _, tag := range path {
		m := asMap(current)
		if m == nil {
			return nil
		}
		current = m[tag]
	}
	return current
}
