package script

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"look", []string{"look"}},
		{"n; e ;;s", []string{"n", "e", "s"}},
		{"#alias k {kill %1;loot}; look", []string{"#alias k {kill %1;loot}", "look"}},
		{"say }odd;n", []string{"say }odd", "n"}},
	}
	for _, tt := range tests {
		if got := split(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("split(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want []string
	}{
		{"name some value here", 2, []string{"name", "some value here"}},
		{"{a b} {c {d}} {e}", 3, []string{"a b", "c {d}", "e"}},
		{"  solo  ", 2, []string{"solo"}},
		{"{unterminated", 2, []string{"unterminated"}},
		{"", 2, nil},
	}
	for _, tt := range tests {
		if got := args(tt.in, tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("args(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestExpandVars(t *testing.T) {
	vars := map[string]string{"target": "orc", "n": "3"}
	lookup := func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
	tests := []struct{ in, want string }{
		{"kill $target", "kill orc"},
		{"$n.$target", "3.orc"},
		{"cost $ 5", "cost $ 5"},
		{"hit $missing", "hit $missing"},
		{"$$target", "$orc"},
	}
	for _, tt := range tests {
		if got := expandVars(tt.in, lookup); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandParams(t *testing.T) {
	params := []string{"big orc", "big", "orc"}
	tests := []struct{ in, want string }{
		{"kill %2", "kill orc"},
		{"say %0!", "say big orc!"},
		{"%9 gone", " gone"},
		{"100% sure", "100% sure"},
	}
	for _, tt := range tests {
		if got := expandParams(tt.in, params); got != tt.want {
			t.Errorf("expandParams(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		cond string
		want bool
	}{
		{"30 < 50", true},
		{"100 < 50", false},
		{"9 < 10", true},
		{"abc == abc", true},
		{"abc != abd", true},
		{"10 >= 10", true},
		{"b > a", true},
		{"1", true},
		{"0", false},
		{"", false},
		{"text", true},
	}
	for _, tt := range tests {
		if got := eval(tt.cond); got != tt.want {
			t.Errorf("eval(%q) = %v, want %v", tt.cond, got, tt.want)
		}
	}
}
