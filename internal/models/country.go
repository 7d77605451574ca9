package models

import "time"

type Country struct {
	ID        int64     `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;type:text;uniqueIndex;not null" json:"name"`
	UserCount int64     `gorm:"column:user_count;not null;default:0" json:"user_count"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Country) TableName() string { return "countries" }

type CountrySyncResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}
