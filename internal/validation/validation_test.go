package validation

import (
	"testing"

	"github.com/fentz26/mxchip/internal/schema"
)

func ptr(v float64) *float64 { return &v }

func newTestSchema() *schema.Schema {
	return schema.New().
		Set("num_images", schema.Field{Type: schema.TypeInteger, Default: 1, ExclusiveMinimum: ptr(0), Required: true}).
		Set("exp_time", schema.Field{Type: schema.TypeNumber, Default: 0.05, ExclusiveMinimum: ptr(0), ExclusiveMaximum: ptr(10)}).
		Set("energy", schema.Field{Type: schema.TypeNumber, ExclusiveMinimum: ptr(8), ExclusiveMaximum: ptr(20)}).
		Set("prefix", schema.Field{Type: schema.TypeString, Required: true}).
		Set("shutterless", schema.Field{Type: schema.TypeBoolean}).
		Set("detector_mode", schema.Field{Type: schema.TypeString, Enum: []any{"normal", "roi"}})
}

func TestCoerce(t *testing.T) {
	c := NewCoercer(DefaultTextFields)
	s := newTestSchema()

	in := map[string]any{
		"num_images":  " 100 ",
		"exp_time":    "0.04",
		"energy":      "twelve",
		"prefix":      "007",
		"shutterless": "true",
		"label":       "1",
		"kappa":       "45",
		"comment":     "not a number",
	}
	out := c.Coerce(in, s)

	if out["num_images"] != 100 {
		t.Errorf("Expected num_images 100, got %#v", out["num_images"])
	}
	if out["exp_time"] != 0.04 {
		t.Errorf("Expected exp_time 0.04, got %#v", out["exp_time"])
	}
	if out["energy"] != "twelve" {
		t.Errorf("Expected unparsable energy kept, got %#v", out["energy"])
	}
	if out["prefix"] != "007" {
		t.Errorf("Expected string field kept as text, got %#v", out["prefix"])
	}
	// shutterless is allow-listed, but the schema declares it boolean.
	if out["shutterless"] != true {
		t.Errorf("Expected declared boolean parsed, got %#v", out["shutterless"])
	}
	if out["label"] != "1" {
		t.Errorf("Expected label kept as text, got %#v", out["label"])
	}
	if out["kappa"] != 45.0 {
		t.Errorf("Expected undeclared numeric field converted, got %#v", out["kappa"])
	}
	if out["comment"] != "not a number" {
		t.Errorf("Expected undeclared text kept, got %#v", out["comment"])
	}
	if in["num_images"] != " 100 " {
		t.Error("Coerce modified its input")
	}
}

func TestCoerce_Boolean(t *testing.T) {
	c := NewCoercer(nil)
	s := schema.New().Set("inverse_beam", schema.Field{Type: schema.TypeBoolean})

	out := c.Coerce(map[string]any{"inverse_beam": "false"}, s)
	if out["inverse_beam"] != false {
		t.Errorf("Expected false, got %#v", out["inverse_beam"])
	}
}

func TestCoerce_AllowListedBooleansValidate(t *testing.T) {
	c := NewCoercer(DefaultTextFields)
	s := schema.New().
		Set("shutterless", schema.Field{Type: schema.TypeBoolean}).
		Set("inverse_beam", schema.Field{Type: schema.TypeBoolean}).
		Set("num_images", schema.Field{Type: schema.TypeInteger, ExclusiveMinimum: ptr(0)})

	params := c.Coerce(map[string]any{
		"num_images":   "10",
		"shutterless":  "true",
		"inverse_beam": "false",
	}, s)
	res := NewValidator(nil).Validate(params, s)
	if !res.Valid() {
		t.Fatalf("Expected valid parameters, got %v", res.Errors)
	}
	if params["shutterless"] != true || params["inverse_beam"] != false {
		t.Errorf("Expected booleans, got %#v and %#v", params["shutterless"], params["inverse_beam"])
	}

	// Undeclared, the allow-list keeps them as text.
	out := c.Coerce(map[string]any{"inverse_beam": "1"}, nil)
	if out["inverse_beam"] != "1" {
		t.Errorf("Expected undeclared allow-listed field kept as text, got %#v", out["inverse_beam"])
	}
}

func TestCoerce_NonFiniteTextKept(t *testing.T) {
	c := NewCoercer(DefaultTextFields)
	for _, in := range []string{"NaN", "Inf", "-inf", "+Infinity"} {
		out := c.Coerce(map[string]any{"comment": in}, newTestSchema())
		if out["comment"] != in {
			t.Errorf("Expected %q kept as text, got %#v", in, out["comment"])
		}
	}
}

func TestValidate_NegativeImagesRejected(t *testing.T) {
	s := schema.New().Set("num_images", schema.Field{Type: schema.TypeInteger, ExclusiveMinimum: ptr(0)})
	v := NewValidator(DefaultWarnings())

	for _, params := range []map[string]any{
		{"num_images": "-5"},
		NewCoercer(DefaultTextFields).Coerce(map[string]any{"num_images": "-5"}, s),
	} {
		res := v.Validate(params, s)
		if res.Valid() {
			t.Fatalf("Expected %v to be invalid", params)
		}
		if _, ok := res.Errors["num_images"]; !ok {
			t.Errorf("Expected error on num_images, got %v", res.Errors)
		}
		if len(res.Errors) != 1 {
			t.Errorf("Expected exactly one field error, got %v", res.Errors)
		}
	}
}

func TestValidate_Rules(t *testing.T) {
	s := newTestSchema()
	v := NewValidator(nil)

	base := func() map[string]any {
		return map[string]any{"num_images": 10, "exp_time": 0.05, "energy": 12.4, "prefix": "pos"}
	}

	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"valid", func(map[string]any) {}, ""},
		{"missing required", func(p map[string]any) { delete(p, "num_images") }, "num_images"},
		{"blank required", func(p map[string]any) { p["prefix"] = "  " }, "prefix"},
		{"not a number", func(p map[string]any) { p["exp_time"] = "fast" }, "exp_time"},
		{"fractional integer", func(p map[string]any) { p["num_images"] = 2.5 }, "num_images"},
		{"at exclusive minimum", func(p map[string]any) { p["energy"] = 8.0 }, "energy"},
		{"at exclusive maximum", func(p map[string]any) { p["energy"] = 20.0 }, "energy"},
		{"just inside", func(p map[string]any) { p["energy"] = 19.999 }, ""},
		{"enum", func(p map[string]any) { p["detector_mode"] = "fast" }, "detector_mode"},
		{"boolean", func(p map[string]any) { p["shutterless"] = "maybe" }, "shutterless"},
		{"optional blank", func(p map[string]any) { p["energy"] = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			res := v.Validate(p, s)
			if tt.field == "" {
				if !res.Valid() {
					t.Errorf("Expected valid, got %v", res.Errors)
				}
				return
			}
			if _, ok := res.Errors[tt.field]; !ok || len(res.Errors) != 1 {
				t.Errorf("Expected a single error on %s, got %v", tt.field, res.Errors)
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	s := newTestSchema()
	v := NewValidator(DefaultWarnings())

	res := v.Validate(map[string]any{"num_images": 200000, "exp_time": 0.005, "prefix": "pos"}, s)
	if !res.Valid() {
		t.Fatalf("Expected warnings not to block, got %v", res.Errors)
	}
	if _, ok := res.Warnings["exp_time"]; !ok {
		t.Error("Expected exp_time warning")
	}
	if _, ok := res.Warnings["num_images"]; !ok {
		t.Error("Expected num_images warning")
	}

	// A field with an error carries no warning.
	res = v.Validate(map[string]any{"num_images": 1, "exp_time": -1.0, "prefix": "pos"}, s)
	if _, ok := res.Warnings["exp_time"]; ok {
		t.Error("Expected no warning on a failing field")
	}
}
