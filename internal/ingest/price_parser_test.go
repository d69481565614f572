package ingest

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"£1,249.00", 1249, false},
		{"from £899 total", 899, false},
		{"1249", 1249, false},
		{"  £ 75.5 ", 75.5, false},
		{"", 0, true},
		{"POA", 0, true},
		{"Call for price", 0, true},
		{"£0", 0, true},
		{"-£50", 0, true},
		{"£-50", 0, true},
		{"was £900 now £800", 0, true},
		{"free", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePrice(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePrice(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseStayDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2025-07-04", "2025-07-04", false},
		{"2025-07-04T15:00:00Z", "2025-07-04", false},
		{"Friday 4th July 2025", "2025-07-04", false},
		{"Fri, 4 Jul 2025", "2025-07-04", false},
		{"Arriving: 4 July 2025", "2025-07-04", false},
		{"July 4, 2025", "2025-07-04", false},
		{"04/07/2025", "2025-07-04", false},
		{"TBC", "", true},
		{"", "", true},
		{"13/13/2025", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStayDate(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStayDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStayDate(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseNights(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"7 nights", 7, false},
		{"3", 3, false},
		{"4-night break", 4, false},
		{"0 nights", 0, true},
		{"nights", 0, true},
		{"90", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseNights(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseNights(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseNights(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseBedroomsAndPets(t *testing.T) {
	if b := parseBedrooms("Sleeps 6 | 2 bed"); b == nil || *b != 2 {
		t.Fatalf("expected 2 bedrooms, got %v", b)
	}
	if b := parseBedrooms("Studio apartment"); b == nil || *b != 0 {
		t.Fatalf("expected studio to be 0 bedrooms, got %v", b)
	}
	if b := parseBedrooms("spacious"); b != nil {
		t.Fatalf("expected unknown bedrooms, got %d", *b)
	}

	if p := parsePets("No pets"); p == nil || *p {
		t.Fatalf("expected explicit no pets")
	}
	if p := parsePets("Pets welcome"); p == nil || !*p {
		t.Fatalf("expected pets welcome")
	}
	if p := parsePets("Hot tub"); p != nil {
		t.Fatalf("expected unknown pet policy")
	}
}
