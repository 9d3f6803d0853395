// Package queryfile reads declarative query definitions from YAML or TOML
// files and turns them into core.QuerySpec values.
//
// A query file looks like:
//
//	collection: members
//	filters:
//	  - { field: deleted, type: bool, value: false }
//	groups:
//	  - comb: or
//	    filters:
//	      - { field: role, op: eq, type: string, value: admin }
//	      - { field: role, op: eq, type: string, value: owner }
//	joins:
//	  - { kind: one, collection: accounts, local: account_id, foreign: _id, as: created_by }
//	sort: ["-created_at", name]
//	size: 20
package queryfile

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bizfeed/docq/core"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"
)

type File struct {
	Name       string   `yaml:"name" toml:"name"`
	Collection string   `yaml:"collection" toml:"collection" validate:"required"`
	Filters    []Filter `yaml:"filters" toml:"filters" validate:"dive"`
	Groups     []Group  `yaml:"groups" toml:"groups" validate:"dive"`
	Text       string   `yaml:"text" toml:"text"`
	Joins      []Join   `yaml:"joins" toml:"joins" validate:"dive"`
	Sort       []string `yaml:"sort" toml:"sort" validate:"dive,required"`
	Skip       int64    `yaml:"skip" toml:"skip" validate:"gte=0"`
	Limit      int64    `yaml:"limit" toml:"limit" validate:"gte=0"`
	Page       int64    `yaml:"page" toml:"page" validate:"gte=0"`
	Size       int64    `yaml:"size" toml:"size" validate:"gte=0"`
}

type Group struct {
	Comb    string   `yaml:"comb" toml:"comb" validate:"oneof=and or"`
	Filters []Filter `yaml:"filters" toml:"filters" validate:"required,dive"`
}

type Filter struct {
	Field string `yaml:"field" toml:"field" validate:"required"`
	Op    string `yaml:"op" toml:"op"`
	// string, number, bool, id or array
	Type string `yaml:"type" toml:"type" validate:"oneof=string number bool id array"`
	// element type of an array value, string when empty
	Elem  string `yaml:"elem" toml:"elem" validate:"omitempty,oneof=string number bool id"`
	Value any    `yaml:"value" toml:"value"`
}

type Join struct {
	Kind       string `yaml:"kind" toml:"kind" validate:"oneof=one many"`
	Collection string `yaml:"collection" toml:"collection" validate:"required"`
	Local      string `yaml:"local" toml:"local" validate:"required"`
	Foreign    string `yaml:"foreign" toml:"foreign" validate:"required"`
	As         string `yaml:"as" toml:"as" validate:"required"`
	Into       string `yaml:"into" toml:"into"`
}

var validate = validator.New()

var ops = map[string]core.Op{
	"":      core.OpNone,
	"eq":    core.OpEq,
	"ne":    core.OpNe,
	"gt":    core.OpGt,
	"gte":   core.OpGte,
	"lt":    core.OpLt,
	"lte":   core.OpLte,
	"in":    core.OpIn,
	"nin":   core.OpNin,
	"regex": core.OpRegex,
}

// Parse decodes a query file. format is yaml or toml.
func Parse(data []byte, format string) (*File, error) {
	var f File

	switch format {
	case "yaml", "yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("queryfile: %w", err)
		}
	case "toml":
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("queryfile: %w", err)
		}
		if un := md.Undecoded(); len(un) != 0 {
			return nil, fmt.Errorf("queryfile: unknown key %q", un[0].String())
		}
	default:
		return nil, fmt.Errorf("queryfile: unsupported format %q", format)
	}

	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("queryfile: %w", err)
	}
	return &f, nil
}

// Load reads a single query file. The format follows the file extension and
// the name defaults to the file name without it.
func Load(fs afero.Fs, path string) (*File, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("queryfile: %w", err)
	}
	ext := filepath.Ext(path)

	f, err := Parse(b, strings.TrimPrefix(ext, "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), ext)
	}
	return f, nil
}

// LoadDir reads every query file in dir, keyed by name
func LoadDir(fs afero.Fs, dir string) (map[string]*File, error) {
	out := make(map[string]*File)

	for _, pat := range []string{"*.yaml", "*.yml", "*.toml"} {
		files, err := afero.Glob(fs, filepath.Join(dir, pat))
		if err != nil {
			return nil, fmt.Errorf("queryfile: %w", err)
		}
		for _, p := range files {
			f, err := Load(fs, p)
			if err != nil {
				return nil, err
			}
			if _, dup := out[f.Name]; dup {
				return nil, fmt.Errorf("queryfile: duplicate query name %q", f.Name)
			}
			out[f.Name] = f
		}
	}
	return out, nil
}

// Build returns the query described by the file. Page and Size are not
// applied; they are meant for core.Pageable.
func (f *File) Build() (core.QuerySpec, error) {
	q := core.Get(f.Collection)

	var err error
	for _, fl := range f.Filters {
		if q, err = fl.apply(q); err != nil {
			return q, err
		}
	}

	for _, g := range f.Groups {
		if g.Comb == "or" {
			q = q.Or()
		} else {
			q = q.And()
		}
		for _, fl := range g.Filters {
			if q, err = fl.apply(q); err != nil {
				return q, err
			}
		}
	}

	if f.Text != "" {
		q = q.Text(f.Text)
	}

	for _, j := range f.Joins {
		var opts []core.JoinOption
		if j.Into != "" {
			opts = append(opts, core.Into(j.Into))
		}
		if j.Kind == "many" {
			q = q.JoinMany(j.Collection, j.Local, j.Foreign, j.As, opts...)
		} else {
			q = q.JoinOne(j.Collection, j.Local, j.Foreign, j.As, opts...)
		}
	}

	if len(f.Sort) != 0 {
		sort := make([]core.SortField, len(f.Sort))
		for i, s := range f.Sort {
			if strings.HasPrefix(s, "-") {
				sort[i] = core.Desc(s[1:])
			} else {
				sort[i] = core.Asc(strings.TrimPrefix(s, "+"))
			}
		}
		q = q.Sort(sort...)
	}

	if f.Skip > 0 {
		q = q.Skip(f.Skip)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q, nil
}

func (fl Filter) apply(q core.QuerySpec) (core.QuerySpec, error) {
	op, ok := ops[strings.TrimPrefix(fl.Op, "$")]
	if !ok {
		return q, fmt.Errorf("queryfile: field %q: unknown operator %q", fl.Field, fl.Op)
	}

	elem := fl.Type
	if elem == "array" {
		elem = fl.Elem
		if elem == "" {
			elem = "string"
		}
	}

	v, err := toValue(elem, fl.Value)
	if err != nil {
		return q, fmt.Errorf("queryfile: field %q: %w", fl.Field, err)
	}

	switch fl.Type {
	case "string":
		return q.FilterString(fl.Field, op, v), nil
	case "number":
		return q.FilterNumber(fl.Field, op, v), nil
	case "bool":
		return q.FilterBool(fl.Field, op, v), nil
	case "id":
		return q.FilterID(fl.Field, op, v), nil
	default:
		return q.FilterArray(fl.Field, op, v), nil
	}
}

// toValue converts a decoded scalar, or a list of them, into a core.Value
// of the given element kind
func toValue(kind string, raw any) (core.Value, error) {
	if list, ok := raw.([]any); ok {
		items := make([]core.Value, len(list))
		for i, el := range list {
			v, err := toValue(kind, el)
			if err != nil {
				return core.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			items[i] = v
		}
		return core.Array(items...), nil
	}

	switch kind {
	case "string":
		if s, ok := raw.(string); ok {
			return core.String(s), nil
		}
	case "bool":
		if b, ok := raw.(bool); ok {
			return core.Bool(b), nil
		}
	case "number":
		switch n := raw.(type) {
		case int:
			return core.Int(int64(n)), nil
		case int64:
			return core.Int(n), nil
		case float64:
			if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
				return core.Int(int64(n)), nil
			}
			return core.Float(n), nil
		}
	case "id":
		if s, ok := raw.(string); ok {
			id, err := bson.ObjectIDFromHex(s)
			if err != nil {
				return core.Value{}, err
			}
			return core.ID(id), nil
		}
	}
	return core.Value{}, fmt.Errorf("value %v is not a %s", raw, kind)
}
