package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bizfeed/docq/business"
	"github.com/bizfeed/docq/core"
	"github.com/bizfeed/docq/memstore"
	"github.com/bizfeed/docq/social"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	seedMembers  int
	seedBranches int
	seedRand     int64
)

func seedCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with fake business and community data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			s, err := newService(ctx)
			if err != nil {
				return err
			}
			defer s.Close(ctx) //nolint:errcheck

			return seed(ctx, s.Store(), seedMembers, seedBranches)
		},
	}
	c.Flags().IntVar(&seedMembers, "members", 25, "Members per branch")
	c.Flags().IntVar(&seedBranches, "branches", 2, "Number of branches")
	c.Flags().Int64Var(&seedRand, "rand", 0, "Random seed, 0 picks one")
	return c
}

type batch struct {
	collection string
	docs       []any
}

type bulkInserter interface {
	InsertMany(ctx context.Context, collection string, docs []any) (int, error)
}

type textIndexer interface {
	EnsureTextIndex(ctx context.Context, collection string, fields ...string) error
}

// seed generates fake data and writes it to st
func seed(ctx context.Context, st core.Store, members, branches int) error {
	data := seedData(gofakeit.New(seedRand), members, branches, time.Now())

	for _, b := range data {
		var err error
		switch st := st.(type) {
		case *memstore.Store:
			err = st.Insert(b.collection, b.docs...)
		case bulkInserter:
			_, err = st.InsertMany(ctx, b.collection, b.docs)
		default:
			return errors.Errorf("store %T does not support inserts", st)
		}
		if err != nil {
			return errors.Wrapf(err, "seeding %s", b.collection)
		}
		log.Infof("seeded %d %s", len(b.docs), b.collection)
	}

	if ti, ok := st.(textIndexer); ok {
		if err := ti.EnsureTextIndex(ctx, social.Threads, "title", "tags"); err != nil {
			return err
		}
		if err := ti.EnsureTextIndex(ctx, social.Posts, "body"); err != nil {
			return err
		}
	}
	return nil
}

var (
	productTags = []string{"class", "gym", "pool", "monthly", "yearly", "kids", "promo"}
	threadTags  = []string{"release", "events", "help", "rules", "offtopic"}
	roles       = []string{business.RoleManager, business.RoleStaff, business.RoleClient, business.RoleClient, business.RoleClient}
)

// seedData builds the documents to insert, in dependency order
func seedData(f *gofakeit.Faker, members, branches int, now time.Time) []batch {
	yearAgo := now.AddDate(-1, 0, 0)
	ms := func(t time.Time) int64 { return t.UnixMilli() }

	var accounts []business.Account
	for i := 0; i < max(branches*2, 1); i++ {
		accounts = append(accounts, business.Account{ID: bson.NewObjectID(), Name: f.Name(), Email: f.Email()})
	}
	pickAccount := func() business.Account { return accounts[f.Number(0, len(accounts)-1)] }

	var (
		branchDocs, memberDocs, productDocs []any
		membershipDocs, txDocs              []any
	)

	for b := 0; b < branches; b++ {
		br := business.NewBranch(fmt.Sprintf("%s %d", f.Company(), b+1), f.City(), pickAccount().ID, f.DateRange(yearAgo, now))
		branchDocs = append(branchDocs, br)

		var products []business.Product
		for p := 0; p < 5; p++ {
			prod := business.Product{
				ID:       bson.NewObjectID(),
				BranchID: br.ID,
				Name:     f.ProductName(),
				SKU:      fmt.Sprintf("%s-%03d", br.Slug[:min(3, len(br.Slug))], p),
				Price:    f.Price(5, 500),
				Stock:    int64(f.Number(0, 200)),
				Tags:     []string{f.RandomString(productTags), f.RandomString(productTags)},
			}
			products = append(products, prod)
			productDocs = append(productDocs, prod)
		}

		for m := 0; m < members; m++ {
			created := f.DateRange(yearAgo, now)
			mem := business.Member{
				ID:        bson.NewObjectID(),
				BranchID:  br.ID,
				Name:      f.Name(),
				Email:     f.Email(),
				Role:      roles[f.Number(0, len(roles)-1)],
				CreatedAt: ms(created),
				Deleted:   f.Number(1, 20) == 1,
			}
			if f.Bool() {
				mem.AccountID = pickAccount().ID
			}
			memberDocs = append(memberDocs, mem)

			if mem.Role != business.RoleClient {
				continue
			}
			prod := products[f.Number(0, len(products)-1)]
			starts := f.DateRange(created, now)
			membershipDocs = append(membershipDocs, business.Membership{
				ID:        bson.NewObjectID(),
				BranchID:  br.ID,
				MemberID:  mem.ID,
				ProductID: prod.ID,
				StartsAt:  ms(starts),
				EndsAt:    ms(starts.AddDate(0, f.Number(1, 12), 0)),
			})
			txDocs = append(txDocs, business.Transaction{
				ID:        bson.NewObjectID(),
				BranchID:  br.ID,
				MemberID:  mem.ID,
				Kind:      business.KindSale,
				Amount:    prod.Price,
				CreatedAt: ms(starts),
			})
			if f.Number(1, 10) == 1 {
				txDocs = append(txDocs, business.Transaction{
					ID:        bson.NewObjectID(),
					BranchID:  br.ID,
					MemberID:  mem.ID,
					Kind:      business.KindRefund,
					Amount:    prod.Price / 2,
					CreatedAt: ms(starts.Add(24 * time.Hour)),
				})
			}
		}
	}

	var threadDocs, postDocs, eventDocs, rsvpDocs []any

	for t := 0; t < max(branches*5, 1); t++ {
		th := social.Thread{
			ID:        bson.NewObjectID(),
			Title:     f.Sentence(f.Number(3, 7)),
			AuthorID:  pickAccount().ID,
			Tags:      []string{f.RandomString(threadTags)},
			Pinned:    t == 0,
			CreatedAt: ms(f.DateRange(yearAgo, now)),
		}
		threadDocs = append(threadDocs, th)

		var prev []social.Post
		at := th.CreatedAt
		n := f.Number(1, 6)
		for p := 0; p < n; p++ {
			at += int64(f.Number(1, 48)) * int64(time.Hour/time.Millisecond)
			post := social.Post{
				ID:        bson.NewObjectID(),
				ThreadID:  th.ID,
				AuthorID:  pickAccount().ID,
				Body:      f.Sentence(f.Number(5, 20)),
				CreatedAt: at,
			}
			if len(prev) > 0 && f.Bool() {
				post.QuotedID = prev[f.Number(0, len(prev)-1)].ID
			}
			prev = append(prev, post)
			postDocs = append(postDocs, post)
		}
	}

	for e := 0; e < max(branches*2, 1); e++ {
		ev := social.Event{
			ID:       bson.NewObjectID(),
			Title:    f.BuzzWord() + " " + f.Noun(),
			Venue:    f.City(),
			StartsAt: ms(f.DateRange(now.AddDate(0, -1, 0), now.AddDate(0, 2, 0))),
			Capacity: int64(f.Number(5, 50)),
		}
		eventDocs = append(eventDocs, ev)
		for _, a := range accounts {
			if f.Bool() {
				rsvpDocs = append(rsvpDocs, social.RSVP{
					ID: bson.NewObjectID(), EventID: ev.ID, AccountID: a.ID, Status: "yes",
				})
			}
		}
	}

	accountDocs := make([]any, len(accounts))
	for i, a := range accounts {
		accountDocs[i] = a
	}

	return []batch{
		{business.Accounts, accountDocs},
		{business.Branches, branchDocs},
		{business.Products, productDocs},
		{business.Members, memberDocs},
		{business.Memberships, membershipDocs},
		{business.Transactions, txDocs},
		{social.Threads, threadDocs},
		{social.Posts, postDocs},
		{social.Events, eventDocs},
		{social.RSVPs, rsvpDocs},
	}
}
