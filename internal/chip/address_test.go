package chip

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"0:0", Address{0, 0}, false},
		{" 3:12 ", Address{3, 12}, false},
		{"3", Address{}, true},
		{"a:1", Address{}, true},
		{"1:b", Address{}, true},
		{"", Address{}, true},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAddress(%q): unexpected error %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseAddress(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestParseAddressRoundTrip(t *testing.T) {
	a := Address{Row: 7, Col: 2}
	got, err := ParseAddress(a.String())
	if err != nil || got != a {
		t.Errorf("Expected %v, got %v (%v)", a, got, err)
	}
}
