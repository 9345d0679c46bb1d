package port

// QueryValidator validates source SQL before it reaches the database.
type QueryValidator interface {
	Validate(sql string) error
}
