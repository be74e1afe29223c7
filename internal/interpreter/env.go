package interpreter

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/loykin/interpctl/internal/project"
)

// envKey maps a property name to an environment variable name:
// "zeppelin.python.maxResult" -> "ZEPPELIN_PYTHON_MAXRESULT".
func envKey(prop string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(prop) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// processEnv layers the global KEY=VALUE pairs, the registered defaults, the setting's properties and the
// INTERPCTL_* identity variables, then expands ${VAR} references against the
// composed set and the daemon's own environment. The result is sorted.
func processEnv(global []string, reg RegisteredInterpreter, s Setting, p project.Project) []string {
	m := make(map[string]string)
	for _, kv := range global {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	for k, prop := range reg.Properties {
		if prop.Default != "" {
			m[envKey(k)] = prop.Default
		}
	}
	for k, v := range s.Properties {
		if key := envKey(k); key != "" {
			m[key] = v
		}
	}
	m["INTERPCTL_PROJECT_ID"] = strconv.FormatInt(p.ID, 10)
	m["INTERPCTL_PROJECT"] = p.Name
	m["INTERPCTL_GROUP"] = s.Group
	m["INTERPCTL_SETTING_ID"] = s.ID

	lookup := func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return os.Getenv(k)
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, lookup))
	}
	sort.Strings(out)
	return out
}

// expand replaces ${VAR} only, leaving bare $VAR alone so shell snippets survive.
func expand(s string, lookup func(string) string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(lookup(s[i+2 : i+j]))
		s = s[i+j+1:]
	}
}
