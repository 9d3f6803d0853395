// Package i18n translates error codes into user facing messages.
//
// A Table is loaded once at startup and never changes afterwards. It travels
// to the code that needs it through a context.Context, together with the
// language negotiated for the current caller.
package i18n

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bizfeed/docq/core"
	"github.com/spf13/afero"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// fallback messages used when a table has no entry for a code
var fallback = map[string]string{
	"invalid_query":          "The query is not valid.",
	"missing_collection":     "The query does not name a collection.",
	"unresolved_join_target": "A join refers to an alias that was not joined before it.",
	"store_execution_failed": "The data store could not run the query.",
	"deserialization_failed": "A record could not be read.",
	"not_found":              "Nothing was found.",
	"internal":               "Something went wrong.",
}

// Table holds the messages for every loaded language
type Table struct {
	def     language.Tag
	tags    []language.Tag
	msgs    map[language.Tag]map[string]string
	matcher language.Matcher
}

// New builds a table from messages keyed by BCP 47 language tag. def must
// be one of the keys.
func New(def string, msgs map[string]map[string]string) (*Table, error) {
	dt, err := language.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("i18n: default language: %w", err)
	}

	t := &Table{def: dt, msgs: make(map[language.Tag]map[string]string, len(msgs))}

	keys := make([]string, 0, len(msgs))
	for k := range msgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// the default language goes first so the matcher falls back to it
	t.tags = append(t.tags, dt)
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("i18n: language %q: %w", k, err)
		}
		m := make(map[string]string, len(msgs[k]))
		for code, msg := range msgs[k] {
			m[code] = msg
		}
		t.msgs[tag] = m
		if tag != dt {
			t.tags = append(t.tags, tag)
		}
	}
	if _, ok := t.msgs[dt]; !ok {
		return nil, fmt.Errorf("i18n: no messages for default language %q", def)
	}

	t.matcher = language.NewMatcher(t.tags)
	return t, nil
}

// Load reads one <lang>.yaml file per language from dir. Each file is a flat
// map of code to message.
func Load(fs afero.Fs, dir, def string) (*Table, error) {
	files, err := afero.Glob(fs, filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("i18n: %w", err)
	}

	msgs := make(map[string]map[string]string, len(files))
	for _, f := range files {
		b, err := afero.ReadFile(fs, f)
		if err != nil {
			return nil, fmt.Errorf("i18n: %w", err)
		}
		var m map[string]string
		if err := yaml.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("i18n: %s: %w", f, err)
		}
		msgs[strings.TrimSuffix(filepath.Base(f), ".yaml")] = m
	}
	if len(msgs) == 0 {
		msgs[def] = map[string]string{}
	}
	return New(def, msgs)
}

// Languages lists the loaded languages, default first
func (t *Table) Languages() []string {
	out := make([]string, len(t.tags))
	for i, tag := range t.tags {
		out[i] = tag.String()
	}
	return out
}

// Match picks the best loaded language for an Accept-Language header value
func (t *Table) Match(accept string) language.Tag {
	prefs, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(prefs) == 0 {
		return t.def
	}
	_, idx, _ := t.matcher.Match(prefs...)
	return t.tags[idx]
}

// Message returns the message for code in lang, falling back to the default
// language and then to the built-in English text
func (t *Table) Message(lang language.Tag, code string) string {
	if m, ok := t.msgs[lang][code]; ok {
		return m
	}
	if m, ok := t.msgs[t.def][code]; ok {
		return m
	}
	if m, ok := fallback[code]; ok {
		return m
	}
	return fallback["internal"]
}

type ctxKey int

const (
	tableKey ctxKey = iota
	langKey
)

// WithTable attaches t to ctx
func WithTable(ctx context.Context, t *Table) context.Context {
	return context.WithValue(ctx, tableKey, t)
}

// WithLanguage records the caller's language in ctx
func WithLanguage(ctx context.Context, lang language.Tag) context.Context {
	return context.WithValue(ctx, langKey, lang)
}

// FromContext returns the table attached to ctx or nil
func FromContext(ctx context.Context) *Table {
	t, _ := ctx.Value(tableKey).(*Table)
	return t
}

// Error translates err for the table and language carried by ctx
func Error(ctx context.Context, err error) string {
	if err == nil {
		return ""
	}
	code := core.Code(err)

	t := FromContext(ctx)
	if t == nil {
		return fallback[code]
	}
	lang, ok := ctx.Value(langKey).(language.Tag)
	if !ok {
		lang = t.def
	}
	return t.Message(lang, code)
}
