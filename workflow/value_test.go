package workflow

import (
	"encoding/json"
	"testing"
)

func TestValueJSON(t *testing.T) {
	for _, test := range []struct {
		name string
		v    Value
		json string
	}{
		{"null", Null(), `null`},
		{"string", String("spooler_failure"), `"spooler_failure"`},
		{"number", Int(42), `42`},
		{"bool", Bool(true), `true`},
		{"empty list", List(), `[]`},
		{"list", Strings([]string{"INK_FW_01"}), `["INK_FW_01"]`},
		{"map", Map(Fields{"online": Bool(false), "level": Null()}), `{"level":null,"online":false}`},
		{"optional", OptInt(nil), `null`},
	} {
		t.Run(test.name, func(t *testing.T) {
			b, err := json.Marshal(test.v)
			if err != nil {
				t.Fatal(err)
			}
			if have, want := string(b), test.json; have != want {
				t.Errorf("have: %v, want: %v", have, want)
			}

			var v Value
			if err = json.Unmarshal(b, &v); err != nil {
				t.Fatal(err)
			}
			if !v.Equal(test.v) {
				t.Errorf("round trip mismatch: have: %v, want: %v", v, test.v)
			}
		})
	}
}

func TestValueAccessors(t *testing.T) {
	level := 7
	online := true
	v := Map(Fields{
		"level":  OptInt(&level),
		"online": OptBool(&online),
		"nested": Map(Fields{"k": String("v")}),
	})

	if have, want := v.Get("level").Num(), float64(7); have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if !v.Get("online").Truth() {
		t.Error("expected online to be true")
	}
	if have, want := v.Get("nested").Get("k").Str(), "v"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if !v.Get("missing").IsNull() {
		t.Error("expected missing key to be null")
	}
	if !String("x").Get("k").IsNull() {
		t.Error("expected get on non-map to be null")
	}
	if have, want := v.String(), "{level:7 nested:{k:v} online:true}"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}
