package mongodriver

import (
	"testing"

	"github.com/bizfeed/docq/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestRenderAppliesPrefix(t *testing.T) {
	c, err := core.NewCompiler()
	require.NoError(t, err)

	v, err := c.Compile(core.Get("posts").
		JoinOne("accounts", "author_id", "_id", "author").
		JoinOne("posts", "quoted_id", "_id", "quoted").
		JoinOne("accounts", "author_id", "_id", "author", core.Into("quoted")))
	require.NoError(t, err)

	s := &Store{prefix: "t1_"}
	assert.Equal(t, "t1_posts", s.Name("posts"))

	var froms []string
	for _, st := range s.render(v.Data) {
		d := st.(bson.D)
		if d[0].Key != "$lookup" {
			continue
		}
		for _, e := range d[0].Value.(bson.D) {
			if e.Key == "from" {
				froms = append(froms, e.Value.(string))
			}
		}
	}
	assert.Equal(t, []string{"t1_accounts", "t1_posts", "t1_accounts"}, froms)

	// the compiled pipeline itself is left untouched
	assert.Equal(t, "accounts", v.Data.Stages()[0].(core.LookupStage).From)

	plain := &Store{}
	assert.Equal(t, v.Data.BSON(), plain.render(v.Data))
}

func TestInferBSONType(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{nil, "null"},
		{bson.NewObjectID(), "objectId"},
		{"x", "string"},
		{int32(1), "int"},
		{int64(1), "long"},
		{1.5, "double"},
		{true, "bool"},
		{bson.DateTime(0), "date"},
		{bson.A{1}, "array"},
		{bson.M{"a": 1}, "object"},
		{bson.D{{Key: "a", Value: 1}}, "object"},
		{[]string{"a"}, "array"},
		{struct{}{}, "object"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, inferBSONType(tt.v), "%T", tt.v)
	}
}

func TestObserveAndMergeFields(t *testing.T) {
	sampled := map[string]FieldInfo{}
	observeFields(sampled, bson.M{"_id": bson.NewObjectID(), "name": nil, "tags": bson.A{}})
	observeFields(sampled, bson.M{"_id": bson.NewObjectID(), "name": "ann"})

	assert.Equal(t, "string", sampled["name"].BSONType)
	assert.Equal(t, 2, sampled["name"].Seen)
	assert.True(t, sampled["_id"].Required)
	assert.True(t, sampled["tags"].IsArray)

	schema := map[string]FieldInfo{
		"name": {Name: "name", BSONType: "string", Required: true},
		"age":  {Name: "age", BSONType: "int"},
	}
	merged := mergeFields(schema, sampled)
	assert.Len(t, merged, 4)
	assert.True(t, merged["name"].Required)
	assert.Equal(t, 2, merged["name"].Seen)
	assert.Zero(t, merged["age"].Seen)

	assert.Equal(t, "int", normalizeBSONType(bson.A{"int", "null"}))
	assert.Equal(t, "string", normalizeBSONType(nil))
}
