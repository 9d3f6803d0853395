package business

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bizfeed/docq/core"
	"github.com/bizfeed/docq/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	st      *memstore.Store
	svc     *Service
	owner   Account
	branch  Branch
	other   Branch
	members []Member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{st: memstore.New()}
	f.svc = New(core.NewExecutor(f.st))
	f.svc.now = func() time.Time { return epoch }

	f.owner = Account{ID: bson.NewObjectID(), Name: "Ana Owner", Email: "ana@example.com"}
	require.NoError(t, f.st.Insert(Accounts, f.owner))

	f.branch = NewBranch("Centro Sur", "Quito", f.owner.ID, epoch)
	f.other = NewBranch("Norte", "Guayaquil", f.owner.ID, epoch)
	require.NoError(t, f.st.Insert(Branches, f.branch, f.other))

	roles := []string{RoleManager, RoleStaff, RoleClient, RoleClient, RoleClient}
	for i, r := range roles {
		m := Member{
			ID:        bson.NewObjectID(),
			BranchID:  f.branch.ID,
			Name:      fmt.Sprintf("Member %d", i),
			Email:     fmt.Sprintf("m%d@example.com", i),
			Role:      r,
			CreatedAt: epoch.Add(time.Duration(i) * time.Hour).UnixMilli(),
		}
		if i == 0 {
			m.AccountID = f.owner.ID
		}
		f.members = append(f.members, m)
	}
	f.members[4].Deleted = true
	for _, m := range f.members {
		require.NoError(t, f.st.Insert(Members, m))
	}

	// same name in another branch must never leak
	require.NoError(t, f.st.Insert(Members, Member{
		ID: bson.NewObjectID(), BranchID: f.other.ID, Name: "Member 0", Role: RoleClient,
	}))
	return f
}

func TestBranches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "centro-sur", f.branch.Slug)

	res, err := f.svc.ListBranches(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalItems)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Centro Sur", res.Items[0].Name)
	require.NotNil(t, res.Items[0].CreatedBy)
	assert.Equal(t, f.owner.Name, res.Items[0].CreatedBy.Name)

	res, err = f.svc.ListBranches(ctx, "Guayaquil", 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, f.other.ID, res.Items[0].ID)

	b, err := f.svc.BranchBySlug(ctx, "Centro Sur")
	require.NoError(t, err)
	assert.Equal(t, f.branch.ID, b.ID)

	_, err = f.svc.BranchBySlug(ctx, "nowhere")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter MemberFilter
		want   []string
	}{
		{"active by newest", MemberFilter{}, []string{"Member 3", "Member 2", "Member 1", "Member 0"}},
		{"roles", MemberFilter{Roles: []string{RoleManager, RoleStaff}}, []string{"Member 1", "Member 0"}},
		{"search name", MemberFilter{Search: "member 2"}, []string{"Member 2"}},
		{"search email", MemberFilter{Search: "M3@EXAMPLE"}, []string{"Member 3"}},
		{"search is literal", MemberFilter{Search: "m.@example"}, nil},
		{"deleted", MemberFilter{Status: "deleted"}, []string{"Member 4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.ListMembers(ctx, f.branch.ID, tt.filter, 1, 20)
			require.NoError(t, err)

			var names []string
			for _, m := range res.Items {
				names = append(names, m.Name)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, int64(len(tt.want)), res.TotalItems)
		})
	}

	_, err := f.svc.ListMembers(ctx, f.branch.ID, MemberFilter{Status: "gone"}, 1, 20)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestGetAndDeleteMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m0 := f.members[0]

	got, err := f.svc.GetMember(ctx, f.branch.ID, m0.ID)
	require.NoError(t, err)
	assert.Equal(t, m0.Email, got.Email)
	require.NotNil(t, got.CreatedBy)
	assert.Equal(t, f.owner.ID, got.CreatedBy.ID)

	got, err = f.svc.GetMember(ctx, f.branch.ID, f.members[1].ID)
	require.NoError(t, err)
	assert.Nil(t, got.CreatedBy)

	// wrong branch
	_, err = f.svc.GetMember(ctx, f.other.ID, m0.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, f.svc.DeleteMember(ctx, f.branch.ID, m0.ID))
	_, err = f.svc.GetMember(ctx, f.branch.ID, m0.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = f.svc.DeleteMember(ctx, f.branch.ID, m0.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	res, err := f.svc.ListMembers(ctx, f.branch.ID, MemberFilter{Status: "deleted"}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalItems)
}

func TestProductsAndMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	yoga := Product{ID: bson.NewObjectID(), BranchID: f.branch.ID, Name: "Yoga monthly", SKU: "YG-1", Price: 40, Tags: []string{"class", "monthly"}}
	gym := Product{ID: bson.NewObjectID(), BranchID: f.branch.ID, Name: "Gym yearly", SKU: "GY-12", Price: 300, Tags: []string{"gym", "yearly"}}
	require.NoError(t, f.st.Insert(Products, yoga, gym))

	res, err := f.svc.ListProducts(ctx, f.branch.ID, "", nil, 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Gym yearly", res.Items[0].Name)

	res, err = f.svc.ListProducts(ctx, f.branch.ID, "GY-12", nil, 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, gym.ID, res.Items[0].ID)

	res, err = f.svc.ListProducts(ctx, f.branch.ID, "", []string{"class", "monthly"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, yoga.ID, res.Items[0].ID)

	day := 24 * time.Hour
	current := Membership{
		ID: bson.NewObjectID(), BranchID: f.branch.ID, MemberID: f.members[2].ID, ProductID: yoga.ID,
		StartsAt: epoch.Add(-day).UnixMilli(), EndsAt: epoch.Add(29 * day).UnixMilli(),
	}
	expired := Membership{
		ID: bson.NewObjectID(), BranchID: f.branch.ID, MemberID: f.members[3].ID, ProductID: gym.ID,
		StartsAt: epoch.Add(-400 * day).UnixMilli(), EndsAt: epoch.Add(-35 * day).UnixMilli(),
	}
	require.NoError(t, f.st.Insert(Memberships, current, expired))

	ms, err := f.svc.ListMemberships(ctx, f.branch.ID, epoch, 1, 10)
	require.NoError(t, err)
	require.Len(t, ms.Items, 1)
	got := ms.Items[0]
	require.NotNil(t, got.Member)
	require.NotNil(t, got.Product)
	assert.Equal(t, "Member 2", got.Member.Name)
	assert.Equal(t, "Yoga monthly", got.Product.Name)

	ms, err = f.svc.ListMemberships(ctx, f.branch.ID, time.Time{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ms.TotalItems)
}

func TestTransactionsAndRevenue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx := func(m Member, kind string, amount float64, at time.Time) Transaction {
		return Transaction{
			ID: bson.NewObjectID(), BranchID: f.branch.ID, MemberID: m.ID,
			Kind: kind, Amount: amount, CreatedAt: at.UnixMilli(),
		}
	}
	require.NoError(t, f.st.Insert(Transactions,
		tx(f.members[1], KindSale, 100, epoch.Add(-48*time.Hour)),
		tx(f.members[2], KindSale, 40, epoch),
		tx(f.members[2], KindRefund, 15, epoch.Add(time.Hour)),
		tx(f.members[3], KindSale, 25, epoch.Add(2*time.Hour)),
	))

	res, err := f.svc.ListTransactions(ctx, f.branch.ID, TxFilter{Member: f.members[2].ID}, 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, KindRefund, res.Items[0].Kind)
	require.NotNil(t, res.Items[0].Member)
	assert.Equal(t, "Member 2", res.Items[0].Member.Name)

	res, err = f.svc.ListTransactions(ctx, f.branch.ID, TxFilter{Kinds: []string{KindSale}, From: epoch}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalItems)

	res, err = f.svc.ListTransactions(ctx, f.branch.ID, TxFilter{To: epoch}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TotalItems)

	sum, err := f.svc.Revenue(ctx, f.branch.ID, epoch)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, sum, 1e-9)
}
