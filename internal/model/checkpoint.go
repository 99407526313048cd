package model

import "time"

// QueueCheckpoint 记录消费者最后处理的队列游标
type QueueCheckpoint struct {
	Name      string    `gorm:"type:varchar(128);primaryKey" json:"name"`
	Cursor    string    `gorm:"type:varchar(64);not null" json:"cursor"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (QueueCheckpoint) TableName() string {
	return "queue_checkpoints"
}
