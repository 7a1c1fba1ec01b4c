package entity

import "time"

// Symbol is a row of the symbols table, the queryable copy of the instrument universe.
type Symbol struct {
	ID           uint      `gorm:"primaryKey"`
	Symbol       string    `gorm:"size:20;not null;uniqueIndex"`
	Code         string    `gorm:"size:10;not null;index:symbol_code_exchange,priority:1"`
	Exchange     string    `gorm:"size:4;not null;index:symbol_code_exchange,priority:2"`
	Name         string    `gorm:"size:64;not null"`
	VolUnit      int       `gorm:"not null;default:100"`
	DecimalPoint int       `gorm:"not null;default:2"`
	PreClose     float64   `gorm:"not null;default:0"`
	IsActive     bool      `gorm:"not null;default:true"`
	SortKey      int       `gorm:"not null;default:0"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
