package schema

import (
	"encoding/json"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"
)

func newTestTemplate() *Schema {
	return New().
		Set("num_images", Field{Type: TypeInteger, Title: "Number of images", Default: 1, Required: true}).
		Set("exp_time", Field{Type: TypeNumber, Title: "Exposure time (s)", Default: 0.05, Required: true}).
		Set("energy", Field{Type: TypeNumber, Title: "Energy (keV)", Default: 12.4}).
		Set("prefix", Field{Type: TypeString, Title: "Prefix", Default: "pos"})
}

func TestResolve_NoConstraintsIsDistinctCopy(t *testing.T) {
	tmpl := newTestTemplate()

	out, ignored := Resolve(tmpl, nil, nil)
	if len(ignored) != 0 {
		t.Errorf("Expected nothing ignored, got %v", ignored)
	}
	if !out.Equal(tmpl) {
		t.Error("Expected resolved schema to equal template")
	}
	if out == tmpl {
		t.Fatal("Expected a distinct schema")
	}

	out.Set("extra", Field{Type: TypeString})
	if tmpl.Has("extra") {
		t.Error("Mutating the result changed the template")
	}
}

func TestResolve_EnergyConstraints(t *testing.T) {
	tmpl := newTestTemplate()

	out, ignored := Resolve(tmpl, Defaults{"energy": 13.0}, Limits{"energy": {Min: 8, Max: 20}})
	if len(ignored) != 0 {
		t.Errorf("Expected nothing ignored, got %v", ignored)
	}

	f, ok := out.Field("energy")
	if !ok {
		t.Fatal("Expected energy field")
	}
	if f.Default != 13.0 {
		t.Errorf("Expected default 13.0, got %v", f.Default)
	}
	if f.ExclusiveMinimum == nil || *f.ExclusiveMinimum != 8 {
		t.Errorf("Expected exclusiveMinimum 8, got %v", f.ExclusiveMinimum)
	}
	if f.ExclusiveMaximum == nil || *f.ExclusiveMaximum != 20 {
		t.Errorf("Expected exclusiveMaximum 20, got %v", f.ExclusiveMaximum)
	}

	orig, _ := tmpl.Field("energy")
	if orig.Default != 12.4 || orig.ExclusiveMinimum != nil || orig.ExclusiveMaximum != nil {
		t.Errorf("Template was modified: %+v", orig)
	}

	// Fields without constraints are untouched.
	want, _ := tmpl.Field("exp_time")
	got, _ := out.Field("exp_time")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("exp_time = %+v, want %+v", got, want)
	}
}

func TestResolve_UnknownFieldsIgnored(t *testing.T) {
	tmpl := newTestTemplate()

	out, ignored := Resolve(tmpl,
		Defaults{"wavelength": 0.98, "energy": 11.0},
		Limits{"detector_distance": {Min: 100, Max: 900}, "wavelength": {Min: 0.5, Max: 2}},
	)
	if !reflect.DeepEqual(ignored, []string{"detector_distance", "wavelength"}) {
		t.Errorf("Expected sorted unknown names, got %v", ignored)
	}
	if out.Has("wavelength") || out.Has("detector_distance") {
		t.Error("Unknown constraints added fields")
	}
	if !reflect.DeepEqual(out.Names(), tmpl.Names()) {
		t.Errorf("Expected names %v, got %v", tmpl.Names(), out.Names())
	}
}

func TestProperty_ResolveIdempotent(t *testing.T) {
	names := []string{"num_images", "exp_time", "energy", "prefix", "resolution"}

	rapid.Check(t, func(t *rapid.T) {
		defaults := Defaults{}
		limits := Limits{}
		for _, n := range names {
			if rapid.Bool().Draw(t, "has_default_"+n) {
				defaults[n] = rapid.Float64Range(-100, 100).Draw(t, "default_"+n)
			}
			if rapid.Bool().Draw(t, "has_limit_"+n) {
				lo := rapid.Float64Range(-100, 100).Draw(t, "min_"+n)
				limits[n] = Limit{Min: lo, Max: lo + rapid.Float64Range(0, 100).Draw(t, "span_"+n)}
			}
		}

		tmpl := newTestTemplate()
		once, _ := Resolve(tmpl, defaults, limits)
		twice, _ := Resolve(once, defaults, limits)
		if !twice.Equal(once) {
			t.Fatalf("resolve is not idempotent")
		}
		if !tmpl.Equal(newTestTemplate()) {
			t.Fatalf("template modified")
		}
	})
}

func TestResolver_NilLogger(t *testing.T) {
	r := NewResolver(nil)
	out := r.Resolve(newTestTemplate(), Defaults{"bogus": 1}, nil)
	if out.Has("bogus") {
		t.Error("Expected bogus to be ignored")
	}
}

func TestSchemaJSON_KeepsOrder(t *testing.T) {
	tmpl := newTestTemplate()

	data, err := json.Marshal(tmpl)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back Schema
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(back.Names(), tmpl.Names()) {
		t.Errorf("Expected order %v, got %v", tmpl.Names(), back.Names())
	}
	if !reflect.DeepEqual(back.Required(), []string{"num_images", "exp_time"}) {
		t.Errorf("Expected required fields kept, got %v", back.Required())
	}
}

func TestSchemaYAML_Decode(t *testing.T) {
	src := `
properties:
  osc_range: {type: number, title: Oscillation range, default: 0.1}
  num_images: {type: integer, default: 1}
  detector_mode:
    type: string
    enum: [normal, roi]
required: [num_images]
`
	var s Schema
	if err := yaml.Unmarshal([]byte(src), &s); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(s.Names(), []string{"osc_range", "num_images", "detector_mode"}) {
		t.Errorf("Unexpected order %v", s.Names())
	}
	f, _ := s.Field("detector_mode")
	if len(f.Enum) != 2 {
		t.Errorf("Expected 2 enum values, got %v", f.Enum)
	}
	if !reflect.DeepEqual(s.Required(), []string{"num_images"}) {
		t.Errorf("Expected num_images required, got %v", s.Required())
	}

	var bad Schema
	if err := yaml.Unmarshal([]byte("properties: {}\nrequired: [missing]\n"), &bad); err == nil {
		t.Error("Expected error for undeclared required field")
	}
}

func TestOrder(t *testing.T) {
	s := New().
		Set("prefix", Field{Type: TypeString}).
		Set("energy", Field{Type: TypeNumber}).
		Set("shutterless", Field{Type: TypeBoolean}).
		Set("num_images", Field{Type: TypeInteger}).
		Set("exp_time", Field{Type: TypeNumber})

	tests := []struct {
		name     string
		priority []string
		want     []string
	}{
		{"default", DefaultPriority, []string{"num_images", "exp_time", "energy", "prefix", "shutterless"}},
		{"wildcard first", []string{Wildcard, "energy"}, []string{"prefix", "shutterless", "num_images", "exp_time", "energy"}},
		{"no wildcard", []string{"exp_time"}, []string{"exp_time", "prefix", "energy", "shutterless", "num_images"}},
		{"empty", nil, []string{"prefix", "energy", "shutterless", "num_images", "exp_time"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Order(s, tt.priority)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSchema_ZeroValue(t *testing.T) {
	var s Schema
	s.Set("energy", Field{Type: TypeNumber})
	if !s.Has("energy") || s.Len() != 1 {
		t.Errorf("Expected zero schema to accept a field, got %v", s.Names())
	}
}
