package business

import (
	"context"
	"regexp"
	"time"

	"github.com/bizfeed/docq/core"
	"github.com/gosimple/slug"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type Service struct {
	e   *core.Executor
	now func() time.Time
}

func New(e *core.Executor) *Service {
	return &Service{e: e, now: time.Now}
}

// MemberFilter narrows ListMembers. Zero fields are ignored.
type MemberFilter struct {
	Search string
	Roles  []string
	Status string // active or deleted, active when empty
}

// live returns a branch scoped query that excludes soft deleted records
func live(collection string, branch bson.ObjectID) core.QuerySpec {
	return core.Get(collection).
		FilterID("branch_id", core.OpEq, core.ID(branch)).
		FilterBool("deleted", core.OpEq, core.Bool(false))
}

func search(term string) core.Value {
	return core.String("(?i)" + regexp.QuoteMeta(term))
}

func (s *Service) ListBranches(ctx context.Context, city string, page, size int64) (core.PagingResult[Branch], error) {
	q := core.Get(Branches).
		FilterBool("deleted", core.OpEq, core.Bool(false))
	if city != "" {
		q = q.FilterString("city", core.OpEq, core.String(city))
	}
	q = q.JoinOne(Accounts, "account_id", "_id", "created_by").
		Sort(core.Asc("name"))

	return core.Pageable[Branch](ctx, s.e, q, page, size)
}

// BranchBySlug accepts either the slug or the display name
func (s *Service) BranchBySlug(ctx context.Context, nameOrSlug string) (Branch, error) {
	q := core.Get(Branches).
		FilterString("slug", core.OpEq, core.String(slug.Make(nameOrSlug))).
		FilterBool("deleted", core.OpEq, core.Bool(false))

	b, err := core.One[Branch](ctx, s.e, q)
	if err != nil {
		return b, errors.Wrapf(err, "branch %q", nameOrSlug)
	}
	return b, nil
}

func (s *Service) ListMembers(ctx context.Context, branch bson.ObjectID, f MemberFilter, page, size int64) (core.PagingResult[Member], error) {
	q := core.Get(Members).
		FilterID("branch_id", core.OpEq, core.ID(branch))

	switch f.Status {
	case "", "active":
		q = q.FilterBool("deleted", core.OpEq, core.Bool(false))
	case "deleted":
		q = q.FilterBool("deleted", core.OpEq, core.Bool(true))
	default:
		return core.PagingResult[Member]{}, errors.Wrapf(core.ErrInvalidQuery, "unknown member status %q", f.Status)
	}

	if len(f.Roles) != 0 {
		q = q.FilterArray("role", core.OpIn, core.Strings(f.Roles...))
	}
	if f.Search != "" {
		q = q.Or().
			FilterString("name", core.OpRegex, search(f.Search)).
			FilterString("email", core.OpRegex, search(f.Search))
	}

	q = q.JoinOne(Accounts, "account_id", "_id", "created_by").
		Sort(core.Desc("created_at"), core.Asc("name"))

	return core.Pageable[Member](ctx, s.e, q, page, size)
}

func (s *Service) GetMember(ctx context.Context, branch, id bson.ObjectID) (Member, error) {
	q := live(Members, branch).
		FilterID("_id", core.OpEq, core.ID(id)).
		JoinOne(Accounts, "account_id", "_id", "created_by")

	m, err := core.One[Member](ctx, s.e, q)
	if err != nil {
		return m, errors.Wrapf(err, "member %s", id.Hex())
	}
	return m, nil
}

// DeleteMember soft deletes a member. Deleting an already deleted member
// returns core.ErrNotFound.
func (s *Service) DeleteMember(ctx context.Context, branch, id bson.ObjectID) error {
	q := live(Members, branch).
		FilterID("_id", core.OpEq, core.ID(id))

	n, err := core.Update(ctx, s.e, q, bson.D{
		{Key: "deleted", Value: true},
		{Key: "deleted_at", Value: s.now().UnixMilli()},
	})
	if err != nil {
		return errors.Wrapf(err, "deleting member %s", id.Hex())
	}
	if n == 0 {
		return errors.Wrapf(core.ErrNotFound, "member %s", id.Hex())
	}
	return nil
}

// ListProducts lists products of a branch. Tags, when given, must all be
// present on a product.
func (s *Service) ListProducts(ctx context.Context, branch bson.ObjectID, term string, tags []string, page, size int64) (core.PagingResult[Product], error) {
	q := live(Products, branch)
	if term != "" {
		q = q.Or().
			FilterString("name", core.OpRegex, search(term)).
			FilterString("sku", core.OpEq, core.String(term))
	}
	if len(tags) != 0 {
		q = q.And()
		for _, t := range tags {
			q = q.FilterString("tags", core.OpEq, core.String(t))
		}
	}
	q = q.Sort(core.Asc("name"))

	return core.Pageable[Product](ctx, s.e, q, page, size)
}

// ListMemberships returns memberships active at the given instant, or all
// of them when at is zero
func (s *Service) ListMemberships(ctx context.Context, branch bson.ObjectID, at time.Time, page, size int64) (core.PagingResult[Membership], error) {
	q := live(Memberships, branch)
	if !at.IsZero() {
		ms := at.UnixMilli()
		q = q.FilterNumber("starts_at", core.OpLte, core.Int(ms)).
			FilterNumber("ends_at", core.OpGt, core.Int(ms))
	}
	q = q.JoinOne(Members, "member_id", "_id", "member").
		JoinOne(Products, "product_id", "_id", "product").
		Sort(core.Desc("starts_at"))

	return core.Pageable[Membership](ctx, s.e, q, page, size)
}

// TxFilter narrows ListTransactions. Zero fields are ignored.
type TxFilter struct {
	Member bson.ObjectID
	Kinds  []string
	From   time.Time
	To     time.Time
}

func (s *Service) ListTransactions(ctx context.Context, branch bson.ObjectID, f TxFilter, page, size int64) (core.PagingResult[Transaction], error) {
	q := live(Transactions, branch)
	if !f.Member.IsZero() {
		q = q.FilterID("member_id", core.OpEq, core.ID(f.Member))
	}
	if len(f.Kinds) != 0 {
		q = q.FilterArray("kind", core.OpIn, core.Strings(f.Kinds...))
	}
	if !f.From.IsZero() {
		q = q.FilterNumber("created_at", core.OpGte, core.Int(f.From.UnixMilli()))
	}
	if !f.To.IsZero() {
		q = q.FilterNumber("created_at", core.OpLt, core.Int(f.To.UnixMilli()))
	}
	q = q.JoinOne(Members, "member_id", "_id", "member").
		Sort(core.Desc("created_at"))

	return core.Pageable[Transaction](ctx, s.e, q, page, size)
}

// Revenue sums sales minus refunds for a branch since the given instant
func (s *Service) Revenue(ctx context.Context, branch bson.ObjectID, since time.Time) (float64, error) {
	q := live(Transactions, branch).
		FilterNumber("created_at", core.OpGte, core.Int(since.UnixMilli()))

	txs, err := core.All[Transaction](ctx, s.e, q)
	if err != nil {
		return 0, errors.Wrap(err, "loading transactions")
	}

	var sum float64
	for _, t := range txs {
		switch t.Kind {
		case KindSale:
			sum += t.Amount
		case KindRefund:
			sum -= t.Amount
		}
	}
	return sum, nil
}
