package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ServiceInfo{},
	&Trajectory{},
	&Sample{},
	&VesselReport{},
	&Detection{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// ServiceInfo records which instance created the database
type ServiceInfo struct {
	gorm.Model
	ServiceName    string `json:"serviceName" gorm:"size:127"`
	ServiceVersion string `json:"serviceVersion" gorm:"size:64"`
}

func (*ServiceInfo) TableName() string {
	return "service_infos"
}

////////////////////////
// TRACKS
////////////////////////

// Trajectory is one replayable track. Samples hang off it ordered by Seq.
type Trajectory struct {
	ID           uint      `json:"-" gorm:"primarykey;autoIncrement;"`
	CreatedAt    time.Time `json:"-"`
	TrajectoryID string    `json:"id" gorm:"size:127;uniqueIndex:idx_trajectory_id"`
	Color        string    `json:"color" gorm:"size:16"`
	MMSI         string    `json:"mmsi" gorm:"size:32;index:idx_trajectory_mmsi"`
	VesselName   string    `json:"vesselName" gorm:"size:127"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	SampleCount  int       `json:"sampleCount"`
	Samples      []Sample  `json:"samples" gorm:"foreignKey:TrajectoryRef;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Trajectory) TableName() string {
	return "trajectories"
}

// Sample is one AIS position report belonging to a trajectory
type Sample struct {
	ID            uint       `json:"-" gorm:"primarykey;autoIncrement;"`
	TrajectoryRef uint       `json:"-" gorm:"index:idx_sample_trajectory"`
	Seq           int        `json:"seq"`
	Time          time.Time  `json:"time" gorm:"index:idx_sample_time"`
	Position      geom.Point `json:"position"` // lon/lat, EPSG:4326
	COG           *float64   `json:"cog"`
	SOG           *float64   `json:"sog"`
	VesselName    string     `json:"vesselName" gorm:"size:127"`
	VesselType    string     `json:"vesselType" gorm:"size:64"`
	MMSI          string     `json:"mmsi" gorm:"size:32"`
}

func (*Sample) TableName() string {
	return "samples"
}

////////////////////////
// FLEET
////////////////////////

// VesselReport mirrors the aggregated analytics document for one MMSI.
// Data is the raw aggregated_data object, null when the document had none.
type VesselReport struct {
	MMSI         string         `json:"mmsi" gorm:"primaryKey;size:32"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	ShipName     string         `json:"shipName" gorm:"size:127"`
	HasData      bool           `json:"hasData"`
	Anomalous    bool           `json:"anomalous" gorm:"index:idx_vesselreport_anomalous"`
	LastPosition geom.Point     `json:"lastPosition"`
	Data         datatypes.JSON `json:"data"`
}

func (*VesselReport) TableName() string {
	return "vessel_reports"
}

////////////////////////
// DETECTIONS
////////////////////////

// Detection is the audit row for one model run
type Detection struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt     time.Time `json:"createdAt" gorm:"index:idx_detection_created_at"`
	Kind          string    `json:"kind" gorm:"size:32"`
	MMSI          string    `json:"mmsi" gorm:"size:32;index:idx_detection_mmsi"`
	ShipName      string    `json:"shipName" gorm:"size:127"`
	SpillDetected *bool     `json:"spillDetected"`
	Detail        string    `json:"detail"`
	RequestedBy   string    `json:"requestedBy" gorm:"size:32"`
}

func (*Detection) TableName() string {
	return "detections"
}
