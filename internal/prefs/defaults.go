package prefs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultsBackend talks to the host preference store through the defaults
// command-line tool. It implements Backend for real apply/unapply runs; tests
// use MemoryBackend instead.
type DefaultsBackend struct {
	// Binary overrides the defaults executable, for tests.
	Binary string
}

// NewDefaultsBackend returns a backend bound to the system defaults tool.
func NewDefaultsBackend() *DefaultsBackend {
	return &DefaultsBackend{Binary: "defaults"}
}

func (b *DefaultsBackend) run(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, b.Binary, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The tool itself could not be launched.
			return "", "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return stdout.String(), stderr.String(), err
}

func isMissingKey(stderr string) bool {
	return strings.Contains(stderr, "does not exist")
}

func (b *DefaultsBackend) Read(ctx context.Context, domain, key string) (Value, bool, error) {
	typeOut, stderr, err := b.run(ctx, "read-type", domain, key)
	if err != nil {
		if isMissingKey(stderr) {
			return Value{}, false, nil
		}
		if errors.Is(err, ErrBackendUnavailable) {
			return Value{}, false, err
		}
		return Value{}, false, fmt.Errorf("read-type %s %s: %v: %s", domain, key, err, strings.TrimSpace(stderr))
	}

	kind := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(typeOut), "Type is"))
	if kind == "array" || kind == "dictionary" {
		// `defaults read` prints container booleans as 0/1; the XML export
		// keeps them typed.
		return b.exportKey(ctx, domain, key)
	}

	rawOut, stderr, err := b.run(ctx, "read", domain, key)
	if err != nil {
		if isMissingKey(stderr) {
			return Value{}, false, nil
		}
		if errors.Is(err, ErrBackendUnavailable) {
			return Value{}, false, err
		}
		return Value{}, false, fmt.Errorf("read %s %s: %v: %s", domain, key, err, strings.TrimSpace(stderr))
	}

	v, err := decodeScalar(kind, rawOut)
	if err != nil {
		return Value{}, false, fmt.Errorf("decode %s %s: %w", domain, key, err)
	}
	return v, true, nil
}

// exportKey reads one container value out of the domain's XML export.
func (b *DefaultsBackend) exportKey(ctx context.Context, domain, key string) (Value, bool, error) {
	out, stderr, err := b.run(ctx, "export", domain, "-")
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return Value{}, false, err
		}
		return Value{}, false, fmt.Errorf("export %s: %v: %s", domain, err, strings.TrimSpace(stderr))
	}
	root, err := decodePlistXML([]byte(out))
	if err != nil {
		return Value{}, false, fmt.Errorf("export %s: %w", domain, err)
	}
	if root.Kind() != KindDict {
		return Value{}, false, fmt.Errorf("export %s: root is %s, not a dictionary", domain, root.Kind())
	}
	v, ok := root.AsDict()[key]
	return v, ok, nil
}

// decodeScalar combines `defaults read-type` and `defaults read` output for
// non-container values.
func decodeScalar(kind, rawOut string) (Value, error) {
	raw := strings.TrimSpace(rawOut)

	switch kind {
	case "boolean":
		return Bool(raw == "1" || raw == "true"), nil
	case "integer":
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("integer %q: %w", raw, err)
		}
		return Int(i), nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("float %q: %w", raw, err)
		}
		return Float(f), nil
	case "string":
		return String(raw), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %q", kind)
	}
}

func (b *DefaultsBackend) Write(ctx context.Context, domain, key string, v Value) error {
	var args []string
	switch v.Kind() {
	case KindBool:
		args = []string{"write", domain, key, "-bool", strconv.FormatBool(v.AsBool())}
	case KindInt:
		args = []string{"write", domain, key, "-int", strconv.FormatInt(v.AsInt(), 10)}
	case KindFloat:
		args = []string{"write", domain, key, "-float", strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)}
	case KindString:
		args = []string{"write", domain, key, "-string", v.AsString()}
	case KindList, KindDict:
		args = []string{"write", domain, key, encodePlistXML(v)}
	default:
		return fmt.Errorf("cannot write value of kind %s", v.Kind())
	}

	_, stderr, err := b.run(ctx, args...)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return err
		}
		return fmt.Errorf("write %s %s: %v: %s", domain, key, err, strings.TrimSpace(stderr))
	}
	return nil
}

func (b *DefaultsBackend) Delete(ctx context.Context, domain, key string) error {
	_, stderr, err := b.run(ctx, "delete", domain, key)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return err
		}
		return fmt.Errorf("delete %s %s: %v: %s", domain, key, err, strings.TrimSpace(stderr))
	}
	return nil
}

func (b *DefaultsBackend) DomainExists(ctx context.Context, domain string) (bool, error) {
	if domain == GlobalDomain {
		return true, nil
	}
	domains, err := b.ListDomains(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range domains {
		if d == domain {
			return true, nil
		}
	}
	return false, nil
}

func (b *DefaultsBackend) ListDomains(ctx context.Context) ([]string, error) {
	out, stderr, err := b.run(ctx, "domains")
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("domains: %v: %s", err, strings.TrimSpace(stderr))
	}
	parts := strings.Split(out, ",")
	domains := make([]string, 0, len(parts))
	for _, p := range parts {
		if d := strings.TrimSpace(p); d != "" {
			domains = append(domains, d)
		}
	}
	return domains, nil
}
