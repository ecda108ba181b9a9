package logg

// Structured log field keys shared by every layer.
const (
	Layer     = "layer"
	Operation = "op"
	RunID     = "run_id"
	Step      = "step"
	Action    = "action"
	URL       = "url"
	Selector  = "selector"
	Label     = "bbox_label"
	Provider  = "provider"
	Driver    = "driver"
)
