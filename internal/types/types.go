// README: Common value objects shared across modules.
package types

type ID string

// Point is a plain WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
