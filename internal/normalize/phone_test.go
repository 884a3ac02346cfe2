package normalize

import "testing"

func TestE164(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"whatsapp:+14155550100", "+14155550100"},
		{"  whatsapp: +1 (415) 555-0100 ", "+14155550100"},
		{"whatsapp:whatsapp:+14155550100", "+14155550100"},
		{"WhatsApp:+14155550100", "+14155550100"},
		{"14155550100", "+14155550100"},
		{"+44 20 7946 0958", "+442079460958"},
		{"＋１４１５５５５０１００", "+14155550100"},
		{"", ""},
		{"   ", ""},
		{"whatsapp:", ""},
		{"abc", ""},
	}
	for _, tc := range cases {
		if got := E164(tc.in); got != tc.want {
			t.Fatalf("E164(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestE164_Idempotent(t *testing.T) {
	inputs := []string{
		"whatsapp:+14155550100",
		"1-415-555-0100",
		"+1+2",
		"",
		"whatsapp: 0044 20",
	}
	for _, in := range inputs {
		once := E164(in)
		if twice := E164(once); twice != once {
			t.Fatalf("E164 not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestExternalContactID(t *testing.T) {
	if got := ExternalContactID("whatsapp:+14155550100"); got != "wa:+14155550100" {
		t.Fatalf("ExternalContactID = %q", got)
	}
	if got := ExternalContactID("+14155550100"); got != "wa:+14155550100" {
		t.Fatalf("ExternalContactID(already normalized) = %q", got)
	}
	if got := ExternalContactID(""); got != "" {
		t.Fatalf("ExternalContactID(empty) = %q; want empty", got)
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{
		"+14155550100": "+****0100",
		"14155550100":  "****0100",
		"+123":         "+123",
		"":             "",
	}
	for in, want := range cases {
		if got := Mask(in); got != want {
			t.Fatalf("Mask(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestEnv(t *testing.T) {
	for in, want := range map[string]string{
		"prod":  "prod",
		" PROD": "prod",
		"dev":   "dev",
		"stage": "dev",
		"":      "dev",
	} {
		if got := Env(in); got != want {
			t.Fatalf("Env(%q) = %q; want %q", in, got, want)
		}
	}
}
