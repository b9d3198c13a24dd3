package domain

// ResumeRow is the persisted representation of one torrent in the Resume
// Store. Tags are serialized as a JSON array in the underlying table.
type ResumeRow struct {
	InfoHash   InfoHash `db:"info_hash"`
	ResumeBlob []byte   `db:"resume_blob"`
	Name       string   `db:"name"`
	Category   string   `db:"category"`
	Tags       []string `db:"-"`
	TagsJSON   string   `db:"tags"`
	AddedTime  int64    `db:"added_time"`
	SavePath   string   `db:"save_path"`
	DLLimit    int64    `db:"dl_limit"`
	ULLimit    int64    `db:"ul_limit"`
}

const ResumeSchemaVersion = 2
