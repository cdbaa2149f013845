package database

import (
	"time"
)

// Run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one BuildCollection + ComputeDailyET pass over a footprint.
type Run struct {
	ID         string     `gorm:"primaryKey;column:id" json:"id" msgpack:"id"`
	Path       int        `gorm:"column:path;not null" json:"path" msgpack:"path"`
	Row        int        `gorm:"column:row_num;not null" json:"row" msgpack:"row"`
	StartDate  time.Time  `gorm:"column:start_date;not null" json:"start_date" msgpack:"start_date"`
	EndDate    time.Time  `gorm:"column:end_date;not null" json:"end_date" msgpack:"end_date"`
	CloudMax   float64    `gorm:"column:cloud_max" json:"cloud_max" msgpack:"cloud_max"`
	Sensors    string     `gorm:"column:sensors" json:"sensors" msgpack:"sensors"`
	ETMethod   string     `gorm:"column:et_method" json:"et_method" msgpack:"et_method"`
	Status     string     `gorm:"column:status;not null" json:"status" msgpack:"status"`
	Message    string     `gorm:"column:message" json:"message,omitempty" msgpack:"message,omitempty"`
	Scenes     int        `gorm:"column:scenes" json:"scenes" msgpack:"scenes"`
	Processed  int        `gorm:"column:processed" json:"processed" msgpack:"processed"`
	Skipped    int        `gorm:"column:skipped" json:"skipped" msgpack:"skipped"`
	StartedAt  time.Time  `gorm:"column:started_at;not null" json:"started_at" msgpack:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty" msgpack:"finished_at,omitempty"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "et_runs"
}

// SceneResult summarizes one scene's daily ET; Payload carries the encoded
// rasters.
type SceneResult struct {
	RunID       string    `gorm:"primaryKey;column:run_id" json:"run_id" msgpack:"run_id"`
	SceneID     string    `gorm:"primaryKey;column:scene_id" json:"scene_id" msgpack:"scene_id"`
	Acquired    time.Time `gorm:"primaryKey;column:acquired" json:"acquired" msgpack:"acquired"`
	Sensor      string    `gorm:"column:sensor" json:"sensor" msgpack:"sensor"`
	OutputName  string    `gorm:"column:output_name" json:"output_name" msgpack:"output_name"`
	ValidPixels int       `gorm:"column:valid_pixels" json:"valid_pixels" msgpack:"valid_pixels"`
	MinET       float64   `gorm:"column:min_et" json:"min_et" msgpack:"min_et"`
	MaxET       float64   `gorm:"column:max_et" json:"max_et" msgpack:"max_et"`
	MeanET      float64   `gorm:"column:mean_et" json:"mean_et" msgpack:"mean_et"`
	ColdRow     int       `gorm:"column:cold_row" json:"cold_row" msgpack:"cold_row"`
	ColdCol     int       `gorm:"column:cold_col" json:"cold_col" msgpack:"cold_col"`
	ColdLST     float64   `gorm:"column:cold_lst" json:"cold_lst" msgpack:"cold_lst"`
	HotRow      int       `gorm:"column:hot_row" json:"hot_row" msgpack:"hot_row"`
	HotCol      int       `gorm:"column:hot_col" json:"hot_col" msgpack:"hot_col"`
	HotLST      float64   `gorm:"column:hot_lst" json:"hot_lst" msgpack:"hot_lst"`
	Payload     []byte    `gorm:"column:payload" json:"-" msgpack:"-"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at" msgpack:"created_at"`
}

// TableName specifies the table name for SceneResult
func (SceneResult) TableName() string {
	return "et_scene_results"
}

// SceneSkip records a scene excluded from a run and why.
type SceneSkip struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id" json:"-" msgpack:"-"`
	RunID     string    `gorm:"column:run_id;index" json:"run_id" msgpack:"run_id"`
	SceneID   string    `gorm:"column:scene_id" json:"scene_id" msgpack:"scene_id"`
	Reason    string    `gorm:"column:reason" json:"reason" msgpack:"reason"`
	Message   string    `gorm:"column:message" json:"message" msgpack:"message"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at" msgpack:"created_at"`
}

// TableName specifies the table name for SceneSkip
func (SceneSkip) TableName() string {
	return "et_scene_skips"
}
