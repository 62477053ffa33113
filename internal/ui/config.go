package ui

// Config holds the ebiten window parameters.
type Config struct {
	Title string
	Scale int
}
