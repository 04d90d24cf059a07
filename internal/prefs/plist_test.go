package prefs

import "testing"

func wrapPlist(fragment string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">` + fragment + `</plist>`)
}

func TestDecodePlistXML(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Value
	}{
		{
			"typed array",
			`<array><true/><integer>2</integer><real>1.5</real><string>x</string></array>`,
			List(Bool(true), Int(2), Float(1.5), String("x")),
		},
		{
			"dictionary",
			`<dict><key>enabled</key><false/><key>name</key><string>Dock</string></dict>`,
			Dict(map[string]Value{"enabled": Bool(false), "name": String("Dock")}),
		},
		{
			"nested",
			`<dict><key>tiles</key><array><dict><key>on</key><true/></dict></array></dict>`,
			Dict(map[string]Value{"tiles": List(Dict(map[string]Value{"on": Bool(true)}))}),
		},
		{
			"indented leaf text",
			"<dict>\n  <key>ratio</key>\n  <real>\n    0.75\n  </real>\n</dict>",
			Dict(map[string]Value{"ratio": Float(0.75)}),
		},
		{
			"escaped string",
			`<string>a &lt;b&gt; &amp; "c"</string>`,
			String(`a <b> & "c"`),
		},
		{
			"empty containers",
			`<dict><key>list</key><array></array></dict>`,
			Dict(map[string]Value{"list": List()}),
		},
	}
	for _, tc := range cases {
		got, err := decodePlistXML(wrapPlist(tc.in))
		if err != nil {
			t.Errorf("%s: decodePlistXML: %v", tc.name, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("%s: decodePlistXML = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestDecodePlistXMLErrors(t *testing.T) {
	for name, in := range map[string]string{
		"no plist root":   `<array><true/></array>`,
		"unclosed":        string(wrapPlist(`<array><true/>`)),
		"bad integer":     string(wrapPlist(`<integer>abc</integer>`)),
		"value-less key":  string(wrapPlist(`<dict><key>orphan</key></dict>`)),
		"unknown element": string(wrapPlist(`<blob>00</blob>`)),
	} {
		if _, err := decodePlistXML([]byte(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestContainerBooleanSurvivesRoundTrip(t *testing.T) {
	// A boolean inside a container must come back as a boolean, or the
	// reconciler would see a permanent divergence and rewrite the key on
	// every run.
	target := Dict(map[string]Value{
		"flags":   List(Bool(true), Bool(false)),
		"enabled": Bool(true),
		"count":   Int(3),
	})

	back, err := decodePlistXML(wrapPlist(encodePlistXML(target)))
	if err != nil {
		t.Fatalf("decode rendered fragment: %v", err)
	}
	if !target.Equal(back) {
		t.Fatalf("round trip not stable: target %s != live %s", target, back)
	}
	if got := back.AsDict()["flags"].AsList()[0].Kind(); got != KindBool {
		t.Errorf("container boolean came back as %s", got)
	}
}

func TestEncodePlistXML(t *testing.T) {
	cases := []struct {
		in   Value
		want string
	}{
		{Bool(true), "<true/>"},
		{Bool(false), "<false/>"},
		{Int(46), "<integer>46</integer>"},
		{Float(0.5), "<real>0.5</real>"},
		{String("a <b> & c"), "<string>a &lt;b&gt; &amp; c</string>"},
		{List(Bool(true), Int(1)), "<array><true/><integer>1</integer></array>"},
		{
			Dict(map[string]Value{"b": Bool(true), "a": Int(1)}),
			"<dict><key>a</key><integer>1</integer><key>b</key><true/></dict>",
		},
	}
	for _, tc := range cases {
		if got := encodePlistXML(tc.in); got != tc.want {
			t.Errorf("encodePlistXML(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeScalar(t *testing.T) {
	cases := []struct {
		kind, raw string
		want      Value
	}{
		{"boolean", "1\n", Bool(true)},
		{"boolean", "0\n", Bool(false)},
		{"integer", "44\n", Int(44)},
		{"float", "0.5\n", Float(0.5)},
		{"string", "hello world\n", String("hello world")},
	}
	for _, tc := range cases {
		got, err := decodeScalar(tc.kind, tc.raw)
		if err != nil {
			t.Errorf("decodeScalar(%q, %q): %v", tc.kind, tc.raw, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("decodeScalar(%q, %q) = %s, want %s", tc.kind, tc.raw, got, tc.want)
		}
	}

	if _, err := decodeScalar("data", "<62 6c 6f 62>\n"); err == nil {
		t.Error("expected error for unsupported type")
	}
}
