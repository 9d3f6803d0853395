// Package social reads the community side of the data: discussion threads,
// posts that may quote other posts, and events members can attend.
package social

import "go.mongodb.org/mongo-driver/v2/bson"

const (
	Accounts = "accounts"
	Threads  = "threads"
	Posts    = "posts"
	Events   = "events"
	RSVPs    = "rsvps"
)

type Author struct {
	ID   bson.ObjectID `bson:"_id" json:"id"`
	Name string        `bson:"name" json:"name"`
}

type Thread struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	Title     string        `bson:"title" json:"title"`
	AuthorID  bson.ObjectID `bson:"author_id" json:"author_id"`
	Tags      []string      `bson:"tags" json:"tags"`
	Pinned    bool          `bson:"pinned" json:"pinned"`
	Deleted   bool          `bson:"deleted" json:"-"`
	CreatedAt int64         `bson:"created_at" json:"created_at"`

	Author *Author `bson:"author,omitempty" json:"author,omitempty"`
}

// Post is a reply in a thread. A post may quote one earlier post, whose
// author is loaded along with it.
type Post struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	ThreadID  bson.ObjectID `bson:"thread_id" json:"thread_id"`
	AuthorID  bson.ObjectID `bson:"author_id" json:"author_id"`
	QuotedID  bson.ObjectID `bson:"quoted_id,omitempty" json:"quoted_id,omitempty"`
	Body      string        `bson:"body" json:"body"`
	Deleted   bool          `bson:"deleted" json:"-"`
	CreatedAt int64         `bson:"created_at" json:"created_at"`

	Author *Author `bson:"author,omitempty" json:"author,omitempty"`
	Quoted *Quote  `bson:"quoted,omitempty" json:"quoted,omitempty"`
}

// Quote is the quoted post as embedded in its quoting post
type Quote struct {
	ID     bson.ObjectID `bson:"_id" json:"id"`
	Body   string        `bson:"body" json:"body"`
	Author *Author       `bson:"author,omitempty" json:"author,omitempty"`
}

type Event struct {
	ID       bson.ObjectID `bson:"_id" json:"id"`
	Title    string        `bson:"title" json:"title"`
	Venue    string        `bson:"venue" json:"venue"`
	StartsAt int64         `bson:"starts_at" json:"starts_at"`
	Capacity int64         `bson:"capacity" json:"capacity"`
	Deleted  bool          `bson:"deleted" json:"-"`

	Attendees []RSVP `bson:"attendees,omitempty" json:"attendees"`
}

// Seats left, never below zero
func (e Event) Seats() int64 {
	if n := e.Capacity - int64(len(e.Attendees)); n > 0 {
		return n
	}
	return 0
}

type RSVP struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	EventID   bson.ObjectID `bson:"event_id" json:"event_id"`
	AccountID bson.ObjectID `bson:"account_id" json:"account_id"`
	Status    string        `bson:"status" json:"status"`
}
