package models

import (
	"fmt"
	"sort"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is the capability shared by users and admins.
type Account interface {
	AccountID() int64
	AccountRole() Role
	AccountUsername() string
	// CanRemovePost reports whether the account may delete the given post.
	CanRemovePost(post *Post) bool
}

type Profile struct {
	ID       int64  `json:"id" yaml:"id" db:"id"`
	Name     string `json:"name" yaml:"name" db:"name"`
	Email    string `json:"email" yaml:"email" db:"email"`
	Username string `json:"username" yaml:"username" db:"username"`
	Password string `json:"-" yaml:"-" db:"password"`
}

type UserAccount struct {
	Profile
	FollowerCount int            `json:"followerCount" yaml:"followerCount" db:"numFollowers"`
	FollowerIDs   map[int64]bool `json:"-" yaml:"-" db:"-"`
}

func NewUserAccount(profile Profile) *UserAccount {
	return &UserAccount{Profile: profile, FollowerIDs: make(map[int64]bool)}
}

func (u *UserAccount) AccountID() int64        { return u.ID }
func (u *UserAccount) AccountRole() Role       { return RoleUser }
func (u *UserAccount) AccountUsername() string { return u.Username }

// a user removes only own posts
func (u *UserAccount) CanRemovePost(post *Post) bool {
	return post != nil && post.AuthorID == u.ID
}

// SetFollowers replaces the follower set and recomputes the count from it.
func (u *UserAccount) SetFollowers(ids []int64) {
	u.FollowerIDs = make(map[int64]bool, len(ids))
	for _, id := range ids {
		u.FollowerIDs[id] = true
	}
	u.FollowerCount = len(u.FollowerIDs)
}

// Follow adds followerID to the follower set. It returns false when the id
// was already present.
func (u *UserAccount) Follow(followerID int64) bool {
	if u.FollowerIDs[followerID] {
		return false
	}
	u.FollowerIDs[followerID] = true
	u.FollowerCount = len(u.FollowerIDs)
	return true
}

func (u *UserAccount) Unfollow(followerID int64) bool {
	if !u.FollowerIDs[followerID] {
		return false
	}
	delete(u.FollowerIDs, followerID)
	u.FollowerCount = len(u.FollowerIDs)
	return true
}

func (u *UserAccount) Followers() []int64 {
	return sortedIDs(u.FollowerIDs)
}

func (u *UserAccount) Clone() *UserAccount {
	c := NewUserAccount(u.Profile)
	for id := range u.FollowerIDs {
		c.FollowerIDs[id] = true
	}
	c.FollowerCount = len(c.FollowerIDs)
	return c
}

type AdminAccount struct {
	Profile
	AssignedReports []ReportKey `json:"assignedReports" yaml:"assignedReports" db:"-"`
}

func NewAdminAccount(profile Profile) *AdminAccount {
	return &AdminAccount{Profile: profile}
}

func (a *AdminAccount) AccountID() int64        { return a.ID }
func (a *AdminAccount) AccountRole() Role       { return RoleAdmin }
func (a *AdminAccount) AccountUsername() string { return a.Username }

// admins may remove any post while handling a report
func (a *AdminAccount) CanRemovePost(post *Post) bool {
	return post != nil
}

// Enqueue appends the report to the end of the assigned queue if absent.
func (a *AdminAccount) Enqueue(key ReportKey) {
	if a.Holds(key) {
		return
	}
	a.AssignedReports = append(a.AssignedReports, key)
}

// Dequeue removes the report from the assigned queue, keeping order.
func (a *AdminAccount) Dequeue(key ReportKey) bool {
	for i, k := range a.AssignedReports {
		if k == key {
			a.AssignedReports = append(a.AssignedReports[:i], a.AssignedReports[i+1:]...)
			return true
		}
	}
	return false
}

func (a *AdminAccount) Holds(key ReportKey) bool {
	for _, k := range a.AssignedReports {
		if k == key {
			return true
		}
	}
	return false
}

func (a *AdminAccount) Clone() *AdminAccount {
	c := NewAdminAccount(a.Profile)
	c.AssignedReports = append([]ReportKey(nil), a.AssignedReports...)
	return c
}

type Post struct {
	ID         int64          `json:"id" yaml:"id" db:"id"`
	AuthorID   int64          `json:"authorId" yaml:"authorId" db:"userId"`
	Text       string         `json:"text" yaml:"text" db:"content"`
	LikeCount  int            `json:"likeCount" yaml:"likeCount" db:"numLikes"`
	LikerIDs   map[int64]bool `json:"-" yaml:"-" db:"-"`
	DatePosted time.Time      `json:"datePosted" yaml:"datePosted" db:"datePosted"`
}

func NewPost(id, authorID int64, text string, datePosted time.Time) *Post {
	return &Post{
		ID:         id,
		AuthorID:   authorID,
		Text:       text,
		LikerIDs:   make(map[int64]bool),
		DatePosted: datePosted,
	}
}

// Like adds userID to the liker set; a second like by the same user is a no-op.
func (p *Post) Like(userID int64) bool {
	if p.LikerIDs[userID] {
		return false
	}
	p.LikerIDs[userID] = true
	p.LikeCount = len(p.LikerIDs)
	return true
}

func (p *Post) Unlike(userID int64) bool {
	if !p.LikerIDs[userID] {
		return false
	}
	delete(p.LikerIDs, userID)
	p.LikeCount = len(p.LikerIDs)
	return true
}

func (p *Post) SetLikers(ids []int64) {
	p.LikerIDs = make(map[int64]bool, len(ids))
	for _, id := range ids {
		p.LikerIDs[id] = true
	}
	p.LikeCount = len(p.LikerIDs)
}

func (p *Post) Likers() []int64 {
	return sortedIDs(p.LikerIDs)
}

func (p *Post) Clone() *Post {
	c := NewPost(p.ID, p.AuthorID, p.Text, p.DatePosted)
	for id := range p.LikerIDs {
		c.LikerIDs[id] = true
	}
	c.LikeCount = len(c.LikerIDs)
	return c
}

func sortedIDs(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PostKey and UserKey name an entity for locking and write ordering.
func PostKey(id int64) string { return fmt.Sprintf("post:%d", id) }
func UserKey(id int64) string { return fmt.Sprintf("user:%d", id) }
