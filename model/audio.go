package model

import "time"

// Flow stages of an upload. The persisted ones are stored in AudioRecord.Status;
// received and stored only ever appear in logs and events.
const (
	StageReceived            = "received"
	StageStored              = "stored"
	StageRecorded            = "recorded"
	StageTranscribing        = "transcribing"
	StageCompleted           = "completed"
	StageTranscriptionFailed = "transcription_failed"
)

// StalledStages are the persisted stages a record can be stuck in.
var StalledStages = []string{StageRecorded, StageTranscribing, StageTranscriptionFailed}

// AudioRecord is one uploaded audio asset and its optional metadata.
type AudioRecord struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	Filename        string    `json:"filename" gorm:"size:255;not null"`
	StoragePath     string    `json:"storagePath" gorm:"size:767;not null"`
	ContentType     string    `json:"contentType" gorm:"size:64"`
	Size            int64     `json:"size"`
	Checksum        string    `json:"checksum" gorm:"size:64;index"`
	UploadTimestamp time.Time `json:"uploadTimestamp" gorm:"index"`
	Status          string    `json:"status" gorm:"size:32;index"`
	LastError       string    `json:"lastError,omitempty" gorm:"type:text"`
	Metadata        *Metadata `json:"metadata,omitempty" gorm:"serializer:json;type:text"` // nil until written
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (AudioRecord) TableName() string {
	return "audio_records"
}

// Lyrics returns the stored lyrics, or "" when no metadata exists.
func (a *AudioRecord) Lyrics() string {
	if a == nil || a.Metadata == nil {
		return ""
	}
	return a.Metadata.Lyrics
}

// Metadata is replaced as a whole on every write; fields are never merged.
type Metadata struct {
	AlbumArtPath   string   `json:"albumArtPath"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Lyrics         string   `json:"lyrics"`
	Tags           []string `json:"tags"`
	Category       string   `json:"category"`
	AgeRestriction string   `json:"ageRestriction"`
}

// FlowEvent reports a stage transition of an upload.
type FlowEvent struct {
	RecordID  string `json:"recordId,omitempty"`
	Filename  string `json:"filename"`
	Stage     string `json:"stage"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}
