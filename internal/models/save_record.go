package models

import (
	"time"

	"gorm.io/gorm"
)

// SaveRecord is one journaled save attempt
type SaveRecord struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Timestamp     time.Time      `gorm:"not null;index" json:"timestamp"` // When focus left the host
	HostPID       uint32         `gorm:"not null;index" json:"host_pid"`
	HostName      string         `gorm:"not null;default:''" json:"host_name"`
	Window        uint64         `gorm:"not null;default:0" json:"window"` // Window that took focus
	TargetApp     string         `gorm:"not null;index" json:"target_app"` // Application that took focus
	TargetTitle   string         `gorm:"not null;default:''" json:"target_title"`
	Success       bool           `gorm:"not null;default:false;index" json:"success"`
	ErrorMsg      string         `gorm:"not null;default:''" json:"error_msg,omitempty"`
	DurationMs    int64          `gorm:"not null;default:0" json:"duration_ms"`
	DisplayServer string         `gorm:"not null" json:"display_server"` // "x11", "wayland" or "windows"
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

type SaveSummary struct {
	TargetApp     string  `json:"target_app"`
	SaveCount     int     `json:"save_count"`
	FailureCount  int     `json:"failure_count"`
	TotalMs       int64   `json:"total_ms"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	Percentage    float64 `json:"percentage,omitempty"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

type Report struct {
	Period        ReportPeriod  `json:"period"`
	Targets       []SaveSummary `json:"targets"`
	TotalSaves    int           `json:"total_saves"`
	Failures      int           `json:"failures"`
	AvgDurationMs float64       `json:"avg_duration_ms"`
	LastSave      *SaveRecord   `json:"last_save,omitempty"`
	GeneratedAt   time.Time     `json:"generated_at"`
}
