package sqlquery

const (
	DeleteAll = "DELETE from jobs"
)
