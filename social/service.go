package social

import (
	"context"
	"time"

	"github.com/bizfeed/docq/core"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	e   *core.Executor
	log *zap.Logger
	now func() time.Time
}

func New(e *core.Executor, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{e: e, log: log, now: time.Now}
}

// ListThreads pages through threads, pinned first. term runs a full text
// search; tag keeps threads carrying it.
func (s *Service) ListThreads(ctx context.Context, term, tag string, page, size int64) (core.PagingResult[Thread], error) {
	q := core.Get(Threads).
		FilterBool("deleted", core.OpEq, core.Bool(false))
	if tag != "" {
		q = q.FilterString("tags", core.OpEq, core.String(tag))
	}
	if term != "" {
		q = q.Text(term)
	}
	q = q.JoinOne(Accounts, "author_id", "_id", "author").
		Sort(core.Desc("pinned"), core.Desc("created_at"))

	return core.Pageable[Thread](ctx, s.e, q, page, size)
}

func postsQuery(thread bson.ObjectID) core.QuerySpec {
	return core.Get(Posts).
		FilterID("thread_id", core.OpEq, core.ID(thread)).
		FilterBool("deleted", core.OpEq, core.Bool(false)).
		JoinOne(Accounts, "author_id", "_id", "author").
		JoinOne(Posts, "quoted_id", "_id", "quoted").
		JoinOne(Accounts, "author_id", "_id", "author", core.Into("quoted"))
}

// ListPosts returns a thread's posts oldest first, each with its author and
// the quoted post with the quoted author
func (s *Service) ListPosts(ctx context.Context, thread bson.ObjectID, page, size int64) (core.PagingResult[Post], error) {
	q := postsQuery(thread).Sort(core.Asc("created_at"))
	return core.Pageable[Post](ctx, s.e, q, page, size)
}

// LastPost returns the newest post of a thread or nil
func (s *Service) LastPost(ctx context.Context, thread bson.ObjectID) (*Post, error) {
	q := postsQuery(thread).Sort(core.Desc("created_at"))
	return core.FindOne[Post](ctx, s.e, q)
}

// DeletePost hides a post. Quotes of it keep pointing at the hidden post.
func (s *Service) DeletePost(ctx context.Context, id bson.ObjectID) error {
	q := core.Get(Posts).
		FilterID("_id", core.OpEq, core.ID(id)).
		FilterBool("deleted", core.OpEq, core.Bool(false))

	n, err := core.Update(ctx, s.e, q, bson.D{{Key: "deleted", Value: true}})
	if err != nil {
		return errors.Wrapf(err, "deleting post %s", id.Hex())
	}
	if n == 0 {
		return errors.Wrapf(core.ErrNotFound, "post %s", id.Hex())
	}
	return nil
}

// UpcomingEvents lists events starting after now with their confirmed
// attendees, soonest first
func (s *Service) UpcomingEvents(ctx context.Context, limit int64) ([]Event, error) {
	q := core.Get(Events).
		FilterBool("deleted", core.OpEq, core.Bool(false)).
		FilterNumber("starts_at", core.OpGt, core.Int(s.now().UnixMilli())).
		JoinMany(RSVPs, "_id", "event_id", "attendees").
		Sort(core.Asc("starts_at"))
	if limit > 0 {
		q = q.Limit(limit)
	}
	return core.FindMany[Event](ctx, s.e, q)
}

// Overview is the landing page summary
type Overview struct {
	Threads  int64    `json:"threads"`
	Posts    int64    `json:"posts"`
	Latest   []Thread `json:"latest"`
	Upcoming []Event  `json:"upcoming"`
}

// Feed loads the overview. Its queries run concurrently and the first
// failure cancels the rest.
func (s *Service) Feed(ctx context.Context, latest, upcoming int64) (Overview, error) {
	var ov Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		q := core.Get(Threads).FilterBool("deleted", core.OpEq, core.Bool(false))
		ov.Threads, err = core.Count(ctx, s.e, q)
		return errors.Wrap(err, "counting threads")
	})
	g.Go(func() (err error) {
		q := core.Get(Posts).FilterBool("deleted", core.OpEq, core.Bool(false))
		ov.Posts, err = core.Count(ctx, s.e, q)
		return errors.Wrap(err, "counting posts")
	})
	g.Go(func() error {
		res, err := s.ListThreads(ctx, "", "", 1, latest)
		if err != nil {
			return errors.Wrap(err, "latest threads")
		}
		ov.Latest = res.Items
		return nil
	})
	g.Go(func() (err error) {
		ov.Upcoming, err = s.UpcomingEvents(ctx, upcoming)
		return errors.Wrap(err, "upcoming events")
	})

	if err := g.Wait(); err != nil {
		s.log.Warn("feed failed", zap.Error(err))
		return Overview{}, err
	}
	return ov, nil
}
