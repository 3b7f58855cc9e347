package medicalkg

import "errors"

var (
	// ErrEmptyText is returned when extraction is attempted on blank input.
	ErrEmptyText = errors.New("medicalkg: empty clinical text")

	// ErrPatientNotFound is returned when a patient id has no stored note.
	ErrPatientNotFound = errors.New("medicalkg: patient not found")

	// ErrNoDataset is returned when a run is started without a data source.
	ErrNoDataset = errors.New("medicalkg: no dataset configured")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("medicalkg: invalid configuration")

	// ErrCheckpointFailed is returned when saving or loading a checkpoint fails.
	ErrCheckpointFailed = errors.New("medicalkg: checkpoint operation failed")
)
