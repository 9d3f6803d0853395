// Package business holds the multi-tenant business records: branches,
// their members, products, memberships and transactions. Every record
// belongs to a branch and is soft deleted.
package business

import (
	"time"

	"github.com/gosimple/slug"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Collection names
const (
	Accounts     = "accounts"
	Branches     = "branches"
	Members      = "members"
	Products     = "products"
	Memberships  = "memberships"
	Transactions = "transactions"
)

// Account is a login that creates records
type Account struct {
	ID    bson.ObjectID `bson:"_id" json:"id"`
	Name  string        `bson:"name" json:"name"`
	Email string        `bson:"email" json:"email"`
}

type Branch struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	Name      string        `bson:"name" json:"name"`
	Slug      string        `bson:"slug" json:"slug"`
	City      string        `bson:"city" json:"city"`
	AccountID bson.ObjectID `bson:"account_id" json:"account_id"`
	Deleted   bool          `bson:"deleted" json:"-"`
	CreatedAt int64         `bson:"created_at" json:"created_at"`

	CreatedBy *Account `bson:"created_by,omitempty" json:"created_by,omitempty"`
}

// NewBranch returns a branch with a fresh id and a slug derived from name
func NewBranch(name, city string, by bson.ObjectID, now time.Time) Branch {
	return Branch{
		ID:        bson.NewObjectID(),
		Name:      name,
		Slug:      slug.Make(name),
		City:      city,
		AccountID: by,
		CreatedAt: now.UnixMilli(),
	}
}

// Member roles
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleStaff   = "staff"
	RoleClient  = "client"
)

type Member struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	BranchID  bson.ObjectID `bson:"branch_id" json:"branch_id"`
	Name      string        `bson:"name" json:"name"`
	Email     string        `bson:"email" json:"email"`
	Role      string        `bson:"role" json:"role"`
	AccountID bson.ObjectID `bson:"account_id,omitempty" json:"account_id,omitempty"`
	Deleted   bool          `bson:"deleted" json:"-"`
	DeletedAt int64         `bson:"deleted_at,omitempty" json:"-"`
	CreatedAt int64         `bson:"created_at" json:"created_at"`

	CreatedBy *Account `bson:"created_by,omitempty" json:"created_by,omitempty"`
}

type Product struct {
	ID       bson.ObjectID `bson:"_id" json:"id"`
	BranchID bson.ObjectID `bson:"branch_id" json:"branch_id"`
	Name     string        `bson:"name" json:"name"`
	SKU      string        `bson:"sku" json:"sku"`
	Price    float64       `bson:"price" json:"price"`
	Stock    int64         `bson:"stock" json:"stock"`
	Tags     []string      `bson:"tags" json:"tags"`
	Deleted  bool          `bson:"deleted" json:"-"`
}

type Membership struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	BranchID  bson.ObjectID `bson:"branch_id" json:"branch_id"`
	MemberID  bson.ObjectID `bson:"member_id" json:"member_id"`
	ProductID bson.ObjectID `bson:"product_id" json:"product_id"`
	StartsAt  int64         `bson:"starts_at" json:"starts_at"`
	EndsAt    int64         `bson:"ends_at" json:"ends_at"`
	Deleted   bool          `bson:"deleted" json:"-"`

	Member  *Member  `bson:"member,omitempty" json:"member,omitempty"`
	Product *Product `bson:"product,omitempty" json:"product,omitempty"`
}

// Transaction kinds
const (
	KindSale   = "sale"
	KindRefund = "refund"
)

type Transaction struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	BranchID  bson.ObjectID `bson:"branch_id" json:"branch_id"`
	MemberID  bson.ObjectID `bson:"member_id" json:"member_id"`
	Kind      string        `bson:"kind" json:"kind"`
	Amount    float64       `bson:"amount" json:"amount"`
	CreatedAt int64         `bson:"created_at" json:"created_at"`
	Deleted   bool          `bson:"deleted" json:"-"`

	Member *Member `bson:"member,omitempty" json:"member,omitempty"`
}
