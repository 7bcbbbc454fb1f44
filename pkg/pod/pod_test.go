package pod

import (
	"reflect"
	"testing"
)

func TestKeyForIP_Zero(t *testing.T) {
	if got := KeyForIP("0.0.0.0"); got != "0" {
		t.Errorf("KeyForIP(0.0.0.0) = %q, want %q", got, "0")
	}
}

func TestKeyForIP_Deterministic(t *testing.T) {
	a := KeyForIP("10.0.0.1")
	b := KeyForIP("10.0.0.1")
	if a != b || a == "" {
		t.Errorf("KeyForIP not deterministic: %q vs %q", a, b)
	}
}

func TestKeyForIP_DistinctAddresses(t *testing.T) {
	a := KeyForIP("10.0.0.1")
	b := KeyForIP("10.0.0.2")
	if a == b {
		t.Errorf("KeyForIP(10.0.0.1) == KeyForIP(10.0.0.2) = %q", a)
	}
}

func TestKeyForIP_Invalid(t *testing.T) {
	if got := KeyForIP("not-an-ip"); got != "" {
		t.Errorf("KeyForIP(invalid) = %q, want empty", got)
	}
}

func TestParseAssignsKeyFromIP(t *testing.T) {
	r, err := Parse([]byte(`{"app":"a","id":"p1","ip":"10.0.0.1"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Key != KeyForIP("10.0.0.1") {
		t.Errorf("Key = %q", r.Key)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	r := Record{App: "a", ID: "p1", IP: "10.0.0.1", Key: "4tE", Seq: 3}
	b, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got, r) {
		t.Errorf("round trip = %+v, want %+v", got, r)
	}
}
