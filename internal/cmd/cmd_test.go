package cmd

import "testing"

func TestParseOnOff(t *testing.T) {
	cases := map[string]bool{"on": true, "ON": true, "1": true, "enable": true, "off": false, "false": false, "no": false}
	for in, want := range cases {
		got, err := parseOnOff(in)
		if err != nil || got != want {
			t.Errorf("parseOnOff(%q) = %t, %v", in, got, err)
		}
	}
	if _, err := parseOnOff("maybe"); err == nil {
		t.Error("parseOnOff(maybe) accepted")
	}
}

func TestRootCommandTree(t *testing.T) {
	root := getRootCmd()
	for _, path := range [][]string{
		{"probe"}, {"init"}, {"pedometer"}, {"pullups"}, {"read"}, {"reset-steps"}, {"stream"}, {"config", "init"},
	} {
		c, _, err := root.Find(path)
		if err != nil || c == root {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
	if f := root.PersistentFlags().Lookup("remote"); f == nil {
		t.Error("missing --remote flag")
	}
}
