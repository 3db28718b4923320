package doc

import (
	"strings"
	"testing"
)

const personSrc = `name: "Joe Schmo"
age: 42
height: "6ft + 1in" @unit(cm)
tags: ["a", "b"]
profile: {
	city: "Berlin"
	weight: 80 @unit(kg)
}
greet: """
	pln("hi")
	""" @fn(main, timeout=30)
`

func TestParseNative(t *testing.T) {
	d, err := ParseNative("person.weft", []byte(personSrc))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if v, ok := d.Lookup("name"); !ok || v != "Joe Schmo" {
		t.Fatalf("name lookup got %v, %v", v, ok)
	}
	if v, ok := d.Lookup("age"); !ok || v != int64(42) {
		t.Fatalf("age lookup got %v (%T)", v, v)
	}

	v, ok := d.Lookup("height")
	if !ok {
		t.Fatal("height field missing")
	}
	q, ok := v.(Quantity)
	if !ok {
		t.Fatalf("height is %T, want Quantity", v)
	}
	if q.Value != 185.42 || q.Unit != "cm" {
		t.Fatalf("height folded to %+v", q)
	}

	// Numeric @unit fields are already in the declared unit.
	if v, _ := d.Lookup("profile.weight"); v.(Quantity).Value != 80 {
		t.Fatalf("weight folded to %+v", v)
	}

	if v, _ := d.Lookup("tags"); len(v.([]any)) != 2 {
		t.Fatalf("tags lookup got %v", v)
	}

	fns := d.Functions(true)
	if len(fns) != 1 {
		t.Fatalf("expected one function, got %d", len(fns))
	}
	fn := fns[0]
	if fn.Path != "root.greet" {
		t.Fatalf("function path %q", fn.Path)
	}
	if !fn.HasAttr("main") {
		t.Fatal("marker attribute missing")
	}
	if v, _ := fn.Attr("timeout"); v != "30" {
		t.Fatalf("timeout attribute %q", v)
	}
}

func TestParseNative_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{
			name:    "root must be a struct",
			src:     `42`,
			wantMsg: "struct",
		},
		{
			name:    "fn field must be a string",
			src:     `f: 42 @fn(main)`,
			wantMsg: "@fn field must be a string",
		},
		{
			name:    "unit needs a symbol",
			src:     `h: 42 @unit()`,
			wantMsg: "@unit requires a unit symbol",
		},
		{
			name:    "bad unit expression",
			src:     `h: "banana" @unit(cm)`,
			wantMsg: "invalid unit expression",
		},
		{
			name:    "unknown target unit",
			src:     `h: 42 @unit(cubits)`,
			wantMsg: "unknown target unit",
		},
		{
			name:    "broken syntax",
			src:     `a: {`,
			wantMsg: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNative("bad.weft", []byte(tt.src))
			if err == nil {
				t.Fatal("expected a parse error")
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestDocument_Data(t *testing.T) {
	d, err := ParseNative("person.weft", []byte(personSrc))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	data := d.Data()
	// Quantities flatten to their magnitude for codecs.
	if data["height"] != 185.42 {
		t.Fatalf("height projected as %v (%T)", data["height"], data["height"])
	}
	profile, ok := data["profile"].(map[string]any)
	if !ok {
		t.Fatalf("profile projected as %T", data["profile"])
	}
	if profile["city"] != "Berlin" {
		t.Fatalf("city projected as %v", profile["city"])
	}
	// Functions stay out of the data projection.
	if _, ok := data["greet"]; ok {
		t.Fatal("function leaked into data projection")
	}
}

func TestDocument_SetAndLookup(t *testing.T) {
	d := New("inline")

	if err := d.Set("a.b.c", int64(7)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if v, ok := d.Lookup("a.b.c"); !ok || v != int64(7) {
		t.Fatalf("lookup got %v, %v", v, ok)
	}

	// Overwrite keeps a single field.
	if err := d.Set("a.b.c", "new"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if v, _ := d.Lookup("a.b.c"); v != "new" {
		t.Fatalf("overwrite lookup got %v", v)
	}

	if _, ok := d.Lookup("a.missing"); ok {
		t.Fatal("lookup of a missing field should fail")
	}
	if err := d.Set("", 1); err == nil {
		t.Fatal("empty path should be rejected")
	}
}

func TestDocument_FunctionsOrder(t *testing.T) {
	src := `first: "pass" @fn(x)
nested: {
	second: "pass" @fn(x)
}
third: "pass" @fn(x)
`
	d, err := ParseNative("order.weft", []byte(src))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	var got []string
	for _, fn := range d.Functions(true) {
		got = append(got, fn.Path)
	}
	// Parent scope functions come before nested ones, depth-first.
	want := []string{"root.first", "root.third", "root.nested.second"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if n := len(d.Functions(false)); n != 2 {
		t.Fatalf("top-level only should find 2 functions, got %d", n)
	}
}

func TestFromData(t *testing.T) {
	d := FromData("decoded", map[string]any{
		"z":    1.5,
		"a":    "x",
		"deep": map[string]any{"k": true},
	})

	if v, ok := d.Lookup("deep.k"); !ok || v != true {
		t.Fatalf("deep lookup got %v, %v", v, ok)
	}
	// Map iteration must not leak into field order.
	if d.Root.Fields[0].Name != "a" || d.Root.Fields[1].Name != "z" {
		t.Fatalf("fields not in sorted order: %+v", d.Root.Fields)
	}
}
