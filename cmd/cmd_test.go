package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bizfeed/docq/business"
	"github.com/bizfeed/docq/core"
	"github.com/bizfeed/docq/memstore"
	"github.com/bizfeed/docq/mongodriver"
	"github.com/bizfeed/docq/social"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

func init() {
	log = zap.NewNop().Sugar()
}

func TestSeedData(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	data := seedData(gofakeit.New(7), 10, 2, now)

	byName := map[string][]any{}
	for _, b := range data {
		byName[b.collection] = b.docs
	}
	assert.Len(t, byName[business.Branches], 2)
	assert.Len(t, byName[business.Members], 20)
	assert.Len(t, byName[business.Products], 10)
	assert.Len(t, byName[business.Accounts], 4)
	assert.Len(t, byName[social.Threads], 10)
	assert.Len(t, byName[social.Events], 4)

	branches := map[bson.ObjectID]bool{}
	for _, d := range byName[business.Branches] {
		b := d.(business.Branch)
		assert.NotEmpty(t, b.Slug)
		branches[b.ID] = true
	}
	members := map[bson.ObjectID]bool{}
	for _, d := range byName[business.Members] {
		m := d.(business.Member)
		assert.True(t, branches[m.BranchID])
		members[m.ID] = true
	}
	for _, d := range byName[business.Memberships] {
		ms := d.(business.Membership)
		assert.True(t, members[ms.MemberID])
		assert.Greater(t, ms.EndsAt, ms.StartsAt)
	}

	posts := map[bson.ObjectID]social.Post{}
	for _, d := range byName[social.Posts] {
		p := d.(social.Post)
		posts[p.ID] = p
	}
	for _, p := range posts {
		if p.QuotedID.IsZero() {
			continue
		}
		q, ok := posts[p.QuotedID]
		require.True(t, ok)
		assert.Equal(t, p.ThreadID, q.ThreadID)
		assert.Less(t, q.CreatedAt, p.CreatedAt)
	}
}

func TestSeedIntoMemoryStore(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	require.NoError(t, seed(ctx, st, 8, 2))

	assert.Equal(t, 16, st.Len(business.Members))

	e := core.NewExecutor(st)
	branches, err := business.New(e).ListBranches(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), branches.TotalItems)

	threads, err := social.New(e, nil).ListThreads(ctx, "", "", 1, 5)
	require.NoError(t, err)
	require.NotEmpty(t, threads.Items)
	assert.True(t, threads.Items[0].Pinned)
	require.NotNil(t, threads.Items[0].Author)
}

func TestPrintExplain(t *testing.T) {
	c, err := core.NewCompiler()
	require.NoError(t, err)
	v, err := c.Compile(core.Get("members").
		FilterBool("deleted", core.OpEq, core.Bool(false)).
		JoinOne("accounts", "account_id", "_id", "created_by").
		Sort(core.Asc("name")))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printExplain(&buf, v))

	out := buf.String()
	assert.Contains(t, out, `"collection": "members"`)
	assert.Contains(t, out, `"$lookup"`)
	assert.Contains(t, out, `"preserveNullAndEmptyArrays": true`)
	assert.Contains(t, out, `"$count": "total_items"`)
}

func TestPrintFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printFields(&buf, []mongodriver.FieldInfo{
		{Name: "_id", BSONType: "objectId", Required: true, Seen: 3},
		{Name: "tags", BSONType: "string", IsArray: true, Seen: 2},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"FIELD", "TYPE", "ARRAY", "REQUIRED", "SEEN"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"tags", "string", "true", "false", "2"}, strings.Fields(lines[2]))
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	c := rootCmd()
	c.SetOut(&buf)
	c.SetArgs([]string{"version"})
	require.NoError(t, c.Execute())
	assert.True(t, strings.HasPrefix(buf.String(), "docq not-set"))
}

func TestQueryCmd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "queries"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dev.yml"), []byte(`
log_level: error
database:
  type: memory
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queries", "members.yaml"), []byte(`
collection: members
filters:
  - { field: deleted, type: bool, value: false }
`), 0o644))

	t.Setenv("GO_ENV", "development")
	conf = nil
	t.Cleanup(func() { conf = nil })

	run := func(args ...string) string {
		var buf bytes.Buffer
		c := rootCmd()
		c.SetOut(&buf)
		c.SetArgs(append(args, "--path", dir))
		require.NoError(t, c.Execute())
		return buf.String()
	}

	assert.Equal(t, "members\n", run("query"))

	out := run("query", "members", "--size", "5")
	assert.Contains(t, out, `"total_items": 0`)
	assert.Contains(t, out, `"items": []`)

	out = run("explain", "members")
	assert.Contains(t, out, `"$match"`)
}
