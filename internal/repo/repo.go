package repo

import "gorm.io/gorm"

// GormRepo is the SQL-backed credential store and refresh session store.
type GormRepo struct {
	DB *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}
