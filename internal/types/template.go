package types

// Template is a named mustache prompt template. Admins can update templates
// at runtime without redeploying the bot.
type Template struct {
	ID       int64  `gorm:"primaryKey"`
	Name     string `gorm:"uniqueIndex"`
	Template string `gorm:"type:text"`
}

func (Template) TableName() string { return "templates" }
