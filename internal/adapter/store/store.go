package store

import "go.ngs.io/resampler/internal/domain"

// SwathLoader is the interface for loading geolocated datasets.
type SwathLoader interface {
	// LoadSwath loads the geolocation of a named dataset.
	LoadSwath(name string) (*domain.Swath, error)

	// LoadVariable loads a data variable of a named dataset, laid out over
	// the dataset's swath dimensions.
	LoadVariable(name, variable string) (*domain.Array, error)
}
