package product

type IDGenerator interface {
	NewID() string
}
