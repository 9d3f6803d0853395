package queryfile

import (
	"testing"

	"github.com/bizfeed/docq/core"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const membersYAML = `
collection: members
filters:
  - { field: deleted, type: bool, value: false }
  - { field: age, op: gte, type: number, value: 18 }
groups:
  - comb: or
    filters:
      - { field: role, op: eq, type: string, value: admin }
      - { field: role, op: in, type: string, value: [owner, manager] }
joins:
  - { kind: one, collection: accounts, local: account_id, foreign: _id, as: created_by }
  - { kind: many, collection: posts, local: _id, foreign: author_id, as: posts }
sort: ["-created_at", name]
page: 2
size: 10
`

const postsTOML = `
name = "quotes"
collection = "posts"
text = "release"

[[filters]]
field = "tags"
type = "array"
op = "in"
value = ["go", "mongo"]

[[joins]]
kind = "one"
collection = "posts"
local = "quoted_id"
foreign = "_id"
as = "quoted"

[[joins]]
kind = "one"
collection = "accounts"
local = "author_id"
foreign = "_id"
as = "author"
into = "quoted"
`

func TestParseYAML(t *testing.T) {
	f, err := Parse([]byte(membersYAML), "yaml")
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.Page)
	assert.Equal(t, int64(10), f.Size)

	q, err := f.Build()
	require.NoError(t, err)

	c, err := core.NewCompiler()
	require.NoError(t, err)
	v, err := c.Compile(q)
	require.NoError(t, err)

	assert.Equal(t, []core.StageKind{
		core.StageMatch, core.StageLookup, core.StageUnwind, core.StageLookup, core.StageSort,
	}, v.Data.Kinds())

	match := v.Data.Stages()[0].(core.MatchStage)
	and := match.Filter[0].Value.(bson.A)
	require.Len(t, and, 3)
	assert.Equal(t, bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: int64(18)}}}}, and[1])

	sort := v.Data.Stages()[4].(core.SortStage)
	assert.Equal(t, []core.SortField{core.Desc("created_at"), core.Asc("name")}, sort.Fields)
}

func TestParseTOML(t *testing.T) {
	f, err := Parse([]byte(postsTOML), "toml")
	require.NoError(t, err)
	assert.Equal(t, "quotes", f.Name)

	q, err := f.Build()
	require.NoError(t, err)
	require.Len(t, q.Joins(), 2)
	assert.Equal(t, "quoted", q.Joins()[1].Into)

	c, err := core.NewCompiler()
	require.NoError(t, err)
	v, err := c.Compile(q)
	require.NoError(t, err)
	assert.Equal(t, []core.StageKind{
		core.StageMatch, core.StageLookup, core.StageUnwind, core.StageLookup, core.StageMerge,
	}, v.Data.Kinds())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name, format, src string
	}{
		{"no collection", "yaml", "filters: []\n"},
		{"unknown key", "yaml", "collection: m\nwhere: {}\n"},
		{"bad type", "yaml", "collection: m\nfilters:\n  - { field: a, type: date, value: 1 }\n"},
		{"bad comb", "yaml", "collection: m\ngroups:\n  - comb: xor\n    filters: [{ field: a, type: bool, value: true }]\n"},
		{"empty group", "yaml", "collection: m\ngroups:\n  - comb: and\n"},
		{"bad join kind", "yaml", "collection: m\njoins:\n  - { kind: some, collection: a, local: b, foreign: c, as: d }\n"},
		{"unknown toml key", "toml", "collection = \"m\"\nwhere = 1\n"},
		{"unknown format", "json", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestBuildValueErrors(t *testing.T) {
	tests := []string{
		"collection: m\nfilters:\n  - { field: a, type: number, value: x }\n",
		"collection: m\nfilters:\n  - { field: a, type: id, value: nothex }\n",
		"collection: m\nfilters:\n  - { field: a, op: like, type: string, value: x }\n",
		"collection: m\nfilters:\n  - { field: a, type: array, elem: number, value: [1, x] }\n",
	}

	for _, src := range tests {
		f, err := Parse([]byte(src), "yaml")
		require.NoError(t, err)
		_, err = f.Build()
		assert.Error(t, err, src)
	}
}

func TestToValue(t *testing.T) {
	id := bson.NewObjectID()

	v, err := toValue("id", id.Hex())
	require.NoError(t, err)
	assert.Equal(t, core.ID(id), v)

	v, err = toValue("number", 2.0)
	require.NoError(t, err)
	assert.Equal(t, core.Int(2), v)

	v, err = toValue("number", 2.5)
	require.NoError(t, err)
	assert.Equal(t, core.Float(2.5), v)

	v, err = toValue("string", []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, core.Strings("a", "b"), v)
}

func TestLoadDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "queries/members.yaml", []byte(membersYAML), 0o644))
	require.NoError(t, afero.WriteFile(fs, "queries/posts.toml", []byte(postsTOML), 0o644))

	files, err := LoadDir(fs, "queries")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, files, "members")
	assert.Contains(t, files, "quotes")

	require.NoError(t, afero.WriteFile(fs, "queries/quotes.yml", []byte("collection: posts\n"), 0o644))
	_, err = LoadDir(fs, "queries")
	assert.Error(t, err)
}
