package token

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"latin", "Hello, World!", []string{"hello", "world"}},
		{"dedupe", "go go gopher", []string{"go", "gopher"}},
		{"digits", "room 42", []string{"room", "42"}},
		{"cjk", "你好世界", []string{"你", "好", "世", "界"}},
		{"mixed", "meet 在 cafe", []string{"meet", "在", "cafe"}},
		{"cjk adjacent to latin", "go语言", []string{"go", "语", "言"}},
		{"empty", "", nil},
		{"punctuation only", "!!! ...", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Tokenize(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
