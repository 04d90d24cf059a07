package prefs

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Container values cross the defaults tool boundary as XML property lists.
// The old-style literal syntax the tool prints by default has no boolean
// type inside containers, so reads go through `defaults export` and writes
// pass an XML fragment; both keep the full type set.

type plistDecoder struct {
	d *xml.Decoder
}

// decodePlistXML decodes an XML property-list document and returns its root
// value. `defaults export` always produces a dictionary root.
func decodePlistXML(data []byte) (Value, error) {
	p := &plistDecoder{d: xml.NewDecoder(bytes.NewReader(data))}

	tok, err := p.token()
	if err != nil {
		return Value{}, fmt.Errorf("plist: %w", err)
	}
	root, ok := tok.(xml.StartElement)
	if !ok || root.Name.Local != "plist" {
		return Value{}, fmt.Errorf("plist: missing <plist> root")
	}

	tok, err = p.token()
	if err != nil {
		return Value{}, fmt.Errorf("plist: %w", err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return Value{}, fmt.Errorf("plist: empty document")
	}
	return p.value(start)
}

// token returns the next structural token, skipping whitespace, comments,
// and the XML prolog.
func (p *plistDecoder) token() (xml.Token, error) {
	for {
		tok, err := p.d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if strings.TrimSpace(string(t)) == "" {
				continue
			}
			return nil, fmt.Errorf("unexpected text %q", strings.TrimSpace(string(t)))
		case xml.Comment, xml.ProcInst, xml.Directive:
			continue
		default:
			return tok, nil
		}
	}
}

// text collects the character data of a leaf element up to its end tag.
func (p *plistDecoder) text(start xml.StartElement) (string, error) {
	var sb strings.Builder
	for {
		tok, err := p.d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.Comment:
			continue
		case xml.EndElement:
			return sb.String(), nil
		default:
			return "", fmt.Errorf("plist: unexpected markup inside <%s>", start.Name.Local)
		}
	}
}

func (p *plistDecoder) value(start xml.StartElement) (Value, error) {
	switch start.Name.Local {
	case "true":
		return Bool(true), p.d.Skip()
	case "false":
		return Bool(false), p.d.Skip()
	case "integer":
		text, err := p.text(start)
		if err != nil {
			return Value{}, err
		}
		i, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("plist: integer %q: %w", strings.TrimSpace(text), err)
		}
		return Int(i), nil
	case "real":
		text, err := p.text(start)
		if err != nil {
			return Value{}, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return Value{}, fmt.Errorf("plist: real %q: %w", strings.TrimSpace(text), err)
		}
		return Float(f), nil
	case "string":
		text, err := p.text(start)
		if err != nil {
			return Value{}, err
		}
		return String(text), nil
	case "data", "date":
		// Kept as opaque strings; the document never declares these, only
		// reads them back out of live domains.
		text, err := p.text(start)
		if err != nil {
			return Value{}, err
		}
		return String(strings.TrimSpace(text)), nil
	case "array":
		var items []Value
		for {
			tok, err := p.token()
			if err != nil {
				return Value{}, err
			}
			switch t := tok.(type) {
			case xml.EndElement:
				return List(items...), nil
			case xml.StartElement:
				v, err := p.value(t)
				if err != nil {
					return Value{}, err
				}
				items = append(items, v)
			default:
				return Value{}, fmt.Errorf("plist: unexpected token in array")
			}
		}
	case "dict":
		entries := map[string]Value{}
		for {
			tok, err := p.token()
			if err != nil {
				return Value{}, err
			}
			switch t := tok.(type) {
			case xml.EndElement:
				return Dict(entries), nil
			case xml.StartElement:
				if t.Name.Local != "key" {
					return Value{}, fmt.Errorf("plist: expected <key>, got <%s>", t.Name.Local)
				}
				key, err := p.text(t)
				if err != nil {
					return Value{}, err
				}
				vtok, err := p.token()
				if err != nil {
					return Value{}, err
				}
				vstart, ok := vtok.(xml.StartElement)
				if !ok {
					return Value{}, fmt.Errorf("plist: key %q has no value", key)
				}
				v, err := p.value(vstart)
				if err != nil {
					return Value{}, err
				}
				entries[key] = v
			default:
				return Value{}, fmt.Errorf("plist: unexpected token in dict")
			}
		}
	default:
		return Value{}, fmt.Errorf("plist: unsupported element <%s>", start.Name.Local)
	}
}

// encodePlistXML renders a value as an XML plist fragment. `defaults write`
// parses the fragment into a typed container, booleans included.
func encodePlistXML(v Value) string {
	var sb strings.Builder
	writePlistXML(&sb, v)
	return sb.String()
}

func writePlistXML(sb *strings.Builder, v Value) {
	switch v.Kind() {
	case KindBool:
		if v.AsBool() {
			sb.WriteString("<true/>")
		} else {
			sb.WriteString("<false/>")
		}
	case KindInt:
		fmt.Fprintf(sb, "<integer>%d</integer>", v.AsInt())
	case KindFloat:
		fmt.Fprintf(sb, "<real>%s</real>", strconv.FormatFloat(v.AsFloat(), 'g', -1, 64))
	case KindString:
		sb.WriteString("<string>")
		escapeXML(sb, v.AsString())
		sb.WriteString("</string>")
	case KindList:
		sb.WriteString("<array>")
		for _, e := range v.AsList() {
			writePlistXML(sb, e)
		}
		sb.WriteString("</array>")
	case KindDict:
		d := v.AsDict()
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("<dict>")
		for _, k := range keys {
			sb.WriteString("<key>")
			escapeXML(sb, k)
			sb.WriteString("</key>")
			writePlistXML(sb, d[k])
		}
		sb.WriteString("</dict>")
	}
}

func escapeXML(sb *strings.Builder, s string) {
	_ = xml.EscapeText(sb, []byte(s))
}
