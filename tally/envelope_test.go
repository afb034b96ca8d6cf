package tally

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeEnvelopeOrdersHeaderFirst(t *testing.T) {
	out := EncodeEnvelope(map[string]any{
		"body":   map[string]any{"zeta": "1", "alpha": "2"},
		"header": map[string]any{"tallyrequest": "Export"},
	})

	headerIdx := strings.Index(out, "<HEADER>")
	bodyIdx := strings.Index(out, "<BODY>")
	if headerIdx == -1 || bodyIdx == -1 {
		t.Fatalf("missing header or body: %s", out)
	}
	if headerIdx > bodyIdx {
		t.Errorf("HEADER must precede BODY: %s", out)
	}
	if strings.Index(out, "<ALPHA>") > strings.Index(out, "<ZETA>") {
		t.Errorf("siblings must be alphabetical: %s", out)
	}
}

func TestEncodeEnvelopeOmitsNilAndRepeatsSlices(t *testing.T) {
	out := EncodeEnvelope(map[string]any{
		"body": map[string]any{
			"skip": nil,
			"item": []any{"a", "b"},
		},
	})

	if strings.Contains(out, "SKIP") {
		t.Errorf("nil value must be omitted: %s", out)
	}
	if strings.Count(out, "<ITEM>") != 2 {
		t.Errorf("slice must repeat the tag: %s", out)
	}
}

func TestEncodeEnvelopeEscapesText(t *testing.T) {
	out := EncodeEnvelope(map[string]any{
		"body": map[string]any{"name": `R&D <"Lab">`},
	})
	want := "<NAME>R&amp;D &lt;&quot;Lab&quot;&gt;</NAME>"
	if !strings.Contains(out, want) {
		t.Errorf("got %s, want substring %s", out, want)
	}
}

func TestDecodeEnvelopeRoundTrip(t *testing.T) {
	xmlText := EncodeEnvelope(map[string]any{
		"header": map[string]any{"tallyrequest": "Export"},
		"body": map[string]any{
			"data": map[string]any{"name": "Cash"},
		},
	})

	doc, err := DecodeEnvelope(xmlText)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := asString(dig(doc, "HEADER", "TALLYREQUEST")); got != "Export" {
		t.Errorf("TALLYREQUEST = %q, want Export", got)
	}
	if got := asString(dig(doc, "BODY", "DATA", "NAME")); got != "Cash" {
		t.Errorf("NAME = %q, want Cash", got)
	}
}

func TestDecodeEnvelopeRepeatedTagPromotion(t *testing.T) {
	doc, err := DecodeEnvelope(`<ENVELOPE><BODY><ROW>one</ROW></BODY></ENVELOPE>`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	body := asMap(doc["BODY"])
	if _, isList := body["ROW"].([]any); isList {
		t.Error("single occurrence must decode as a scalar, not a list")
	}

	doc, err = DecodeEnvelope(`<ENVELOPE><BODY><ROW>one</ROW><ROW>two</ROW></BODY></ENVELOPE>`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rows := asSlice(asMap(doc["BODY"])["ROW"])
	if len(rows) != 2 || rows[0] != "one" || rows[1] != "two" {
		t.Errorf("rows = %v, want [one two]", rows)
	}
}

func TestDecodeEnvelopeAttributes(t *testing.T) {
	doc, err := DecodeEnvelope(`<ENVELOPE><BODY><LEDGER NAME="Cash"><PARENT>Cash-in-Hand</PARENT></LEDGER></BODY></ENVELOPE>`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ledger := asMap(dig(doc, "BODY", "LEDGER"))
	attrs, ok := ledger[attributesKey].(map[string]string)
	if !ok || attrs["NAME"] != "Cash" {
		t.Errorf("attributes = %v, want NAME=Cash", ledger[attributesKey])
	}
	if got := asString(ledger["PARENT"]); got != "Cash-in-Hand" {
		t.Errorf("PARENT = %q", got)
	}
}

func TestDecodeEnvelopeAttributeRoundTrip(t *testing.T) {
	in := map[string]any{
		"body": map[string]any{
			"collection": map[string]any{
				"@attributes": map[string]string{"NAME": "HIMS Ledgers"},
				"type":        "Ledger",
			},
		},
	}
	doc, err := DecodeEnvelope(EncodeEnvelope(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	collection := asMap(dig(doc, "BODY", "COLLECTION"))
	attrs, _ := collection[attributesKey].(map[string]string)
	if attrs["NAME"] != "HIMS Ledgers" {
		t.Errorf("attribute lost in round trip: %v", collection)
	}
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	for _, bad := range []string{"", "   ", "<ENVELOPE><OPEN></ENVELOPE>", "not xml at all <"} {
		_, err := DecodeEnvelope(bad)
		if err == nil {
			t.Errorf("decode(%q) must fail", bad)
			continue
		}
		var protoErr *ProtocolError
		if !errors.As(err, &protoErr) {
			t.Errorf("decode(%q) error %T, want ProtocolError", bad, err)
		}
	}
}
