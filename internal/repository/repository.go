package repository

import (
	"context"

	"ysocial/internal/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.UserAccount) error
	GetAllUsers(ctx context.Context) ([]*models.UserAccount, error)
	UpdateFollowerCount(ctx context.Context, userID int64, count int) error
	DeleteUser(ctx context.Context, userID int64) error
}

type AdminRepository interface {
	CreateAdmin(ctx context.Context, admin *models.AdminAccount) error
	GetAllAdmins(ctx context.Context) ([]*models.AdminAccount, error)
}

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetAll(ctx context.Context) ([]*models.Post, error)
	UpdateLikeCount(ctx context.Context, postID int64, count int) error
	Delete(ctx context.Context, postID int64) error
	DeleteByAuthor(ctx context.Context, authorID int64) error
}

// RelationRepository stores the follows and likes relation rows.
type RelationRepository interface {
	Follow(ctx context.Context, followerID, followeeID int64) error
	Unfollow(ctx context.Context, followerID, followeeID int64) error
	GetFollowerIDs(ctx context.Context, followeeID int64) ([]int64, error)
	GetAllFollows(ctx context.Context) (map[int64][]int64, error)
	DeleteFollowsOf(ctx context.Context, userID int64) error

	Like(ctx context.Context, userID, postID int64) error
	Unlike(ctx context.Context, userID, postID int64) error
	GetLikerIDs(ctx context.Context, postID int64) ([]int64, error)
	GetAllLikes(ctx context.Context) (map[int64][]int64, error)
	DeleteLikesOnPost(ctx context.Context, postID int64) error
	DeleteLikesBy(ctx context.Context, userID int64) error
}

type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetAll(ctx context.Context) ([]*models.Report, error)
	UpdateStatus(ctx context.Context, key models.ReportKey, status models.Status) error
	UpdateAdmin(ctx context.Context, key models.ReportKey, adminID int64) error
}

type TablesRepository interface {
	CountRows(ctx context.Context) (map[Kind]int, error)
}

type Repository struct {
	Gateway  Gateway
	User     UserRepository
	Admin    AdminRepository
	Post     PostRepository
	Relation RelationRepository
	Report   ReportRepository
	Tables   TablesRepository
}

func NewRepository(gw Gateway) *Repository {
	return &Repository{
		Gateway:  gw,
		User:     NewUserRepository(gw),
		Admin:    NewAdminRepository(gw),
		Post:     NewPostRepository(gw),
		Relation: NewRelationRepository(gw),
		Report:   NewReportRepository(gw),
		Tables:   NewTablesRepository(gw),
	}
}
