package format

import "testing"

func TestEscape(t *testing.T) {
	got := Escape("web_01 *prod* [eu]")
	if want := `web\_01 \*prod\* \[eu]`; got != want {
		t.Fatalf("Escape = %q, want %q", got, want)
	}
}

func TestCode(t *testing.T) {
	if got := Code("ocid1.instance.oc1..a`b"); got != "`ocid1.instance.oc1..ab`" {
		t.Fatalf("Code = %q", got)
	}
	if got := Code(""); got != "-" {
		t.Fatalf("Code(empty) = %q", got)
	}
	if got := Field("private ip", "10.0.0.2"); got != "private ip: `10.0.0.2`" {
		t.Fatalf("Field = %q", got)
	}
}
