package recognizer

import "testing"

func TestParseLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Language
		wantErr bool
	}{
		{in: "english", want: English},
		{in: "ENGLISH", want: English},
		{in: "  Turkish ", want: Turkish},
		{in: "dutch", want: Dutch},
		{in: "german", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLanguage(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseLanguage(%q) = %v, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLanguage(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseLanguage(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestLanguagesStableOrder(t *testing.T) {
	t.Parallel()

	got := Languages()
	want := []Language{English, Turkish, Dutch}
	if len(got) != len(want) {
		t.Fatalf("Languages() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Languages() = %v, want %v", got, want)
		}
	}
}
