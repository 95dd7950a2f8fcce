package protocol

// Payload keys shared by every job service.
const (
	KeyBaseID       = "base_id"
	KeyTableID      = "table_id"
	KeyRecordID     = "record_id"
	KeyOutputColumn = "output_column"
	KeyPostIDColumn = "post_id_column"
)

// Envelope carries the context a job service needs to write its result back
// into the right cell without asking the caller again.
type Envelope struct {
	BaseID   string
	TableID  string
	RecordID string
	// OutputKey is the payload key naming the output field. Defaults to
	// KeyOutputColumn.
	OutputKey   string
	OutputField string
}

// Request is a job request: the envelope merged with job-specific params.
type Request struct {
	Envelope
	Params map[string]any
}

// Visual is one image the map image service renders.
type Visual struct {
	Template string `json:"tpl"`
	Prompt   string `json:"prompt"`
}

// Post is the CMS post body sent to the sync service.
type Post struct {
	ID      int64  `json:"id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt,omitempty"`
	Status  string `json:"status"`
}
